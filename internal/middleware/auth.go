package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/campus-api/internal/config"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/pkg/auth"
	"github.com/nsxzhou1114/campus-api/pkg/response"
)

// JWTAuth JWT认证中间件
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从请求头获取token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "请先登录", nil)
			c.Abort()
			return
		}

		// 检查格式
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			response.Unauthorized(c, "Authorization格式错误", nil)
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			logger.Warnf("无效的令牌: %v", err)
			response.Unauthorized(c, "无效的令牌", err)
			c.Abort()
			return
		}

		if claims.Type != auth.AccessToken {
			response.Unauthorized(c, "使用了错误类型的令牌", errors.New("需要访问令牌"))
			c.Abort()
			return
		}

		// 令牌临近过期时提示客户端刷新
		bufferTime := time.Duration(config.GlobalConfig.JWT.BufferSeconds) * time.Second
		if time.Until(time.Unix(claims.ExpiresAt, 0)) < bufferTime {
			c.Header("X-Token-Expire-Soon", "true")
		}

		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		c.Set("tokenID", claims.TokenID)
		c.Set("rawToken", parts[1])
		c.Next()
	}
}

// RefreshAuth 用于刷新访问令牌的中间件
func RefreshAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "请提供刷新令牌", nil)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			response.Unauthorized(c, "Authorization格式错误", nil)
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			logger.Warnf("无效的刷新令牌: %v", err)
			response.Unauthorized(c, "无效的刷新令牌", err)
			c.Abort()
			return
		}

		if claims.Type != auth.RefreshToken {
			response.Unauthorized(c, "使用了错误类型的令牌", errors.New("需要刷新令牌"))
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		c.Set("tokenID", claims.TokenID)
		c.Set("rawToken", parts[1])
		c.Next()
	}
}

// StaffAuth 教职工认证中间件（讲师或管理员）
func StaffAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		JWTAuth()(c)
		if c.IsAborted() {
			return
		}

		role, exists := c.Get("userRole")
		if !exists {
			response.Unauthorized(c, "未授权", nil)
			c.Abort()
			return
		}

		if role != model.RoleLecturer && role != model.RoleAdmin {
			response.Forbidden(c, "需要讲师或管理员权限", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// AdminAuth 管理员认证中间件
func AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		JWTAuth()(c)
		if c.IsAborted() {
			return
		}

		role, exists := c.Get("userRole")
		if !exists {
			response.Unauthorized(c, "未授权", nil)
			c.Abort()
			return
		}

		if role != model.RoleAdmin {
			response.Forbidden(c, "需要管理员权限", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetUserID 从上下文中获取用户ID
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		return 0, false
	}
	return userID.(uint), true
}

// GetRawToken 从上下文中获取原始令牌串
func GetRawToken(c *gin.Context) (string, bool) {
	token, exists := c.Get("rawToken")
	if !exists {
		return "", false
	}
	return token.(string), true
}

// GetUserRole 从上下文中获取用户角色
func GetUserRole(c *gin.Context) (string, bool) {
	userRole, exists := c.Get("userRole")
	if !exists {
		return "", false
	}
	return userRole.(string), true
}
