package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/campus-api/internal/config"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/pkg/auth"
	"go.uber.org/zap"
)

func setupAuthTest(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.GlobalConfig = &config.Config{
		JWT: config.JWTConfig{
			SecretKey:            "test-secret",
			AccessExpireSeconds:  3600,
			RefreshExpireSeconds: 7200,
			BufferSeconds:        300,
			Issuer:               "campus-api-test",
		},
	}
	logger.Logger = zap.NewNop()
	logger.SugaredLogger = logger.Logger.Sugar()
}

func doRequest(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTAuthSetsContext(t *testing.T) {
	setupAuthTest(t)

	router := gin.New()
	router.GET("/me", JWTAuth(), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		role, _ := GetUserRole(c)
		raw, _ := GetRawToken(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": role, "has_token": raw != ""})
	})

	pair, err := auth.GenerateTokenPair(3, model.RoleStudent)
	if err != nil {
		t.Fatalf("生成令牌对失败: %v", err)
	}

	if w := doRequest(router, http.MethodGet, "/me", pair.AccessToken); w.Code != http.StatusOK {
		t.Fatalf("访问令牌应放行: %d %s", w.Code, w.Body.String())
	}
	if w := doRequest(router, http.MethodGet, "/me", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("缺少令牌应拒绝: %d", w.Code)
	}
	// 刷新令牌不能当访问令牌用
	if w := doRequest(router, http.MethodGet, "/me", pair.RefreshToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("刷新令牌不应放行: %d", w.Code)
	}
}

func TestRefreshAuthTokenType(t *testing.T) {
	setupAuthTest(t)

	router := gin.New()
	router.POST("/refresh", RefreshAuth(), func(c *gin.Context) {
		raw, ok := GetRawToken(c)
		if !ok || raw == "" {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	pair, err := auth.GenerateTokenPair(5, model.RoleLecturer)
	if err != nil {
		t.Fatalf("生成令牌对失败: %v", err)
	}

	if w := doRequest(router, http.MethodPost, "/refresh", pair.RefreshToken); w.Code != http.StatusOK {
		t.Fatalf("刷新令牌应放行: %d %s", w.Code, w.Body.String())
	}
	// 访问令牌不能走刷新通道
	if w := doRequest(router, http.MethodPost, "/refresh", pair.AccessToken); w.Code != http.StatusUnauthorized {
		t.Fatalf("访问令牌不应放行: %d", w.Code)
	}
	if w := doRequest(router, http.MethodPost, "/refresh", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("缺少令牌应拒绝: %d", w.Code)
	}
}

func TestAdminAuthRole(t *testing.T) {
	setupAuthTest(t)

	router := gin.New()
	router.GET("/admin", AdminAuth(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	adminPair, err := auth.GenerateTokenPair(1, model.RoleAdmin)
	if err != nil {
		t.Fatalf("生成令牌对失败: %v", err)
	}
	studentPair, err := auth.GenerateTokenPair(2, model.RoleStudent)
	if err != nil {
		t.Fatalf("生成令牌对失败: %v", err)
	}

	if w := doRequest(router, http.MethodGet, "/admin", adminPair.AccessToken); w.Code != http.StatusOK {
		t.Fatalf("管理员应放行: %d", w.Code)
	}
	if w := doRequest(router, http.MethodGet, "/admin", studentPair.AccessToken); w.Code != http.StatusForbidden {
		t.Fatalf("学生应被拒绝: %d", w.Code)
	}
}

func TestStaffAuthRole(t *testing.T) {
	setupAuthTest(t)

	router := gin.New()
	router.GET("/staff", StaffAuth(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	lecturerPair, err := auth.GenerateTokenPair(1, model.RoleLecturer)
	if err != nil {
		t.Fatalf("生成令牌对失败: %v", err)
	}
	studentPair, err := auth.GenerateTokenPair(2, model.RoleStudent)
	if err != nil {
		t.Fatalf("生成令牌对失败: %v", err)
	}

	if w := doRequest(router, http.MethodGet, "/staff", lecturerPair.AccessToken); w.Code != http.StatusOK {
		t.Fatalf("讲师应放行: %d", w.Code)
	}
	if w := doRequest(router, http.MethodGet, "/staff", studentPair.AccessToken); w.Code != http.StatusForbidden {
		t.Fatalf("学生应被拒绝: %d", w.Code)
	}
}
