package auth

import (
	"testing"

	"github.com/nsxzhou1114/campus-api/internal/config"
)

func setupJWTConfig(t *testing.T) {
	t.Helper()
	config.GlobalConfig = &config.Config{
		JWT: config.JWTConfig{
			SecretKey:            "test-secret",
			AccessExpireSeconds:  3600,
			RefreshExpireSeconds: 7200,
			BufferSeconds:        300,
			Issuer:               "campus-api-test",
		},
	}
}

func TestGenerateAndParseTokenPair(t *testing.T) {
	setupJWTConfig(t)

	pair, err := GenerateTokenPair(42, "student")
	if err != nil {
		t.Fatalf("生成令牌对失败: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.ExpiresIn != 3600 {
		t.Fatalf("令牌对内容异常: %+v", pair)
	}

	access, err := ParseToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("解析访问令牌失败: %v", err)
	}
	if access.UserID != 42 || access.Role != "student" || access.Type != AccessToken {
		t.Fatalf("访问令牌声明错误: %+v", access)
	}

	refresh, err := ParseToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("解析刷新令牌失败: %v", err)
	}
	if refresh.Type != RefreshToken || refresh.TokenID != access.TokenID {
		t.Fatalf("刷新令牌声明错误: %+v", refresh)
	}
}

func TestRefreshAccessToken(t *testing.T) {
	setupJWTConfig(t)

	pair, err := GenerateTokenPair(7, "lecturer")
	if err != nil {
		t.Fatalf("生成令牌对失败: %v", err)
	}

	// 访问令牌不能用来刷新
	if _, err := RefreshAccessToken(pair.AccessToken); err == nil {
		t.Fatal("访问令牌不应能换取新令牌对")
	}

	fresh, err := RefreshAccessToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("刷新令牌对失败: %v", err)
	}
	claims, err := ParseToken(fresh.AccessToken)
	if err != nil || claims.UserID != 7 || claims.Role != "lecturer" {
		t.Fatalf("新访问令牌声明错误: %+v err=%v", claims, err)
	}

	// 旧刷新令牌进入黑名单，不能再次使用
	if _, err := ParseToken(pair.RefreshToken); err == nil {
		t.Fatal("旧刷新令牌应已作废")
	}
}

func TestRevokeToken(t *testing.T) {
	setupJWTConfig(t)

	pair, err := GenerateTokenPair(9, "student")
	if err != nil {
		t.Fatalf("生成令牌对失败: %v", err)
	}

	if _, err := ParseToken(pair.AccessToken); err != nil {
		t.Fatalf("撤销前解析失败: %v", err)
	}
	if err := RevokeToken(pair.AccessToken); err != nil {
		t.Fatalf("撤销令牌失败: %v", err)
	}
	if _, err := ParseToken(pair.AccessToken); err == nil {
		t.Fatal("撤销后的令牌不应再被接受")
	}

	// 刷新令牌未被撤销，仍然有效
	if _, err := ParseToken(pair.RefreshToken); err != nil {
		t.Fatalf("刷新令牌不应受影响: %v", err)
	}
}
