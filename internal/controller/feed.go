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

// FeedApi 统一信息流API控制器
type FeedApi struct {
	logger      *zap.SugaredLogger
	feedService *service.FeedService
}

// NewFeedApi 创建信息流API控制器
func NewFeedApi() *FeedApi {
	return &FeedApi{
		logger:      logger.GetSugaredLogger(),
		feedService: service.NewFeedService(),
	}
}

// List 获取统一信息流
func (api *FeedApi) List(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	var req dto.FeedListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "参数错误", err)
		return
	}

	items, err := api.feedService.GetUnifiedFeed(c.Request.Context(), userID, &req)
	if err != nil {
		handleServiceError(c, api.logger, err, "获取信息流失败")
		return
	}

	response.Success(c, "获取成功", items)
}

// MarkRead 标记单个条目已读
func (api *FeedApi) MarkRead(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	sourceKind := c.Param("kind")
	idStr := c.Param("id")
	itemID, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "无效的条目ID", err)
		return
	}

	marked, err := api.feedService.MarkRead(c.Request.Context(), userID, uint(itemID), sourceKind)
	if err != nil {
		handleServiceError(c, api.logger, err, "标记已读失败")
		return
	}

	// 条目已不存在时marked为false，界面据此刷新而不是报错
	response.Success(c, "标记已读成功", gin.H{"marked": marked})
}

// MarkAllRead 标记信息流全部已读
func (api *FeedApi) MarkAllRead(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	result, err := api.feedService.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, api.logger, err, "批量标记已读失败")
		return
	}

	response.Success(c, "批量标记完成", result)
}

// UnreadCount 获取未读条目数量
func (api *FeedApi) UnreadCount(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	count, err := api.feedService.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, api.logger, err, "获取未读数量失败")
		return
	}

	response.Success(c, "获取成功", dto.FeedUnreadCountResponse{Count: count})
}
