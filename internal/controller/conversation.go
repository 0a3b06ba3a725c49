package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/campus-api/internal/dto"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/middleware"
	"github.com/nsxzhou1114/campus-api/internal/service"
	"github.com/nsxzhou1114/campus-api/pkg/response"
	"go.uber.org/zap"
)

// ConversationApi 私信会话API控制器
type ConversationApi struct {
	logger              *zap.SugaredLogger
	conversationService *service.ConversationService
}

// NewConversationApi 创建会话API控制器
func NewConversationApi() *ConversationApi {
	return &ConversationApi{
		logger:              logger.GetSugaredLogger(),
		conversationService: service.NewConversationService(),
	}
}

// Open 打开与指定用户的会话，不存在则创建
func (api *ConversationApi) Open(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	var req dto.ConversationOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "参数错误", err)
		return
	}

	conversationID, err := api.conversationService.FindOrCreate(c.Request.Context(), userID, req.PeerID, req.Subject)
	if err != nil {
		handleServiceError(c, api.logger, err, "打开会话失败")
		return
	}

	response.Success(c, "打开成功", gin.H{"conversation_id": conversationID})
}

// List 获取当前用户参与的会话列表
func (api *ConversationApi) List(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	items, err := api.conversationService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, api.logger, err, "获取会话列表失败")
		return
	}

	response.Success(c, "获取成功", items)
}

// GetMessages 获取会话消息
func (api *ConversationApi) GetMessages(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	conversationID, ok := api.parseConversationID(c)
	if !ok {
		return
	}

	messages, err := api.conversationService.GetMessagesFor(c.Request.Context(), conversationID, userID)
	if err != nil {
		handleServiceError(c, api.logger, err, "获取消息失败")
		return
	}

	response.Success(c, "获取成功", messages)
}

// SendMessage 发送消息
func (api *ConversationApi) SendMessage(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	conversationID, ok := api.parseConversationID(c)
	if !ok {
		return
	}

	var req dto.MessageSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "参数错误", err)
		return
	}

	message, err := api.conversationService.Send(c.Request.Context(), conversationID, userID, req.Content)
	if err != nil {
		handleServiceError(c, api.logger, err, "发送消息失败")
		return
	}

	response.Success(c, "发送成功", message)
}

// MarkRead 标记会话中对方发送的消息为已读
func (api *ConversationApi) MarkRead(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	conversationID, ok := api.parseConversationID(c)
	if !ok {
		return
	}

	count, err := api.conversationService.MarkMessagesRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		handleServiceError(c, api.logger, err, "标记已读失败")
		return
	}

	response.Success(c, "标记已读成功", dto.MessagesReadResult{Count: count})
}

// parseConversationID 解析路径中的会话ID
func (api *ConversationApi) parseConversationID(c *gin.Context) (uint, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "无效的会话ID", err)
		return 0, false
	}
	return uint(id), true
}
