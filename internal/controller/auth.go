package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/middleware"
	"github.com/nsxzhou1114/campus-api/pkg/auth"
	"github.com/nsxzhou1114/campus-api/pkg/response"
	"go.uber.org/zap"
)

// AuthApi 令牌API控制器
// 身份签发在核心之外，这里只提供刷新和撤销
type AuthApi struct {
	logger *zap.SugaredLogger
}

// NewAuthApi 创建令牌API控制器
func NewAuthApi() *AuthApi {
	return &AuthApi{logger: logger.GetSugaredLogger()}
}

// Refresh 用刷新令牌换取新的令牌对，旧刷新令牌作废
func (api *AuthApi) Refresh(c *gin.Context) {
	refreshToken, exists := middleware.GetRawToken(c)
	if !exists {
		response.Unauthorized(c, "请提供刷新令牌", nil)
		return
	}

	pair, err := auth.RefreshAccessToken(refreshToken)
	if err != nil {
		api.logger.Warnf("刷新令牌失败: %v", err)
		response.Unauthorized(c, "刷新令牌失败", err)
		return
	}

	response.Success(c, "刷新成功", pair)
}

// Logout 撤销当前访问令牌
func (api *AuthApi) Logout(c *gin.Context) {
	accessToken, exists := middleware.GetRawToken(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	if err := auth.RevokeToken(accessToken); err != nil {
		api.logger.Warnf("撤销令牌失败: %v", err)
		response.InternalServerError(c, "登出失败", err)
		return
	}

	if userID, ok := middleware.GetUserID(c); ok {
		api.logger.Infof("用户%d已登出", userID)
	}
	response.Success(c, "登出成功", nil)
}
