package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/pkg/auth"
	"github.com/nsxzhou1114/campus-api/pkg/response"
	"github.com/nsxzhou1114/campus-api/pkg/websocket"
	"go.uber.org/zap"
)

// WebSocketApi WebSocket接入控制器
type WebSocketApi struct {
	logger           *zap.SugaredLogger
	websocketManager *websocket.Manager
}

// NewWebSocketApi 创建WebSocket接入控制器
func NewWebSocketApi() *WebSocketApi {
	return &WebSocketApi{
		logger:           logger.GetSugaredLogger(),
		websocketManager: websocket.GetManager(),
	}
}

// HandleWebSocket 处理WebSocket连接
// 浏览器WebSocket无法带Authorization头，token走查询参数
func (api *WebSocketApi) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		api.logger.Warnf("WebSocket连接缺少认证token")
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return
	}

	claims, err := auth.ParseToken(token)
	if err != nil {
		api.logger.Warnf("WebSocket连接token验证失败: %v", err)
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return
	}

	if claims.Type != auth.AccessToken {
		api.logger.Warnf("WebSocket连接使用了错误类型的token: %v", claims.Type)
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return
	}

	api.logger.Infof("用户%d建立WebSocket连接", claims.UserID)
	api.websocketManager.HandleWebSocket(c, claims.UserID)
}

// OnlineUsers 在线用户概况
// 带user_id参数时单查该用户的在线状态
func (api *WebSocketApi) OnlineUsers(c *gin.Context) {
	if idStr := c.Query("user_id"); idStr != "" {
		userID, err := strconv.ParseUint(idStr, 10, 32)
		if err != nil {
			response.BadRequest(c, "无效的用户ID", err)
			return
		}
		response.Success(c, "获取成功", gin.H{
			"user_id": uint(userID),
			"online":  api.websocketManager.IsUserOnline(uint(userID)),
		})
		return
	}

	users := api.websocketManager.OnlineUsers()
	response.Success(c, "获取成功", gin.H{
		"count": len(users),
		"users": users,
	})
}
