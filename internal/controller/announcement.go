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

// AnnouncementApi 公告API控制器
type AnnouncementApi struct {
	logger              *zap.SugaredLogger
	announcementService *service.AnnouncementService
}

// NewAnnouncementApi 创建公告API控制器
func NewAnnouncementApi() *AnnouncementApi {
	return &AnnouncementApi{
		logger:              logger.GetSugaredLogger(),
		announcementService: service.NewAnnouncementService(),
	}
}

// Create 发布公告
func (api *AnnouncementApi) Create(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	var req dto.AnnouncementCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "参数错误", err)
		return
	}

	announcement, err := api.announcementService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		handleServiceError(c, api.logger, err, "发布公告失败")
		return
	}

	response.Success(c, "发布成功", announcement)
}

// ListMine 获取当前用户发布的公告
func (api *AnnouncementApi) ListMine(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}

	items, err := api.announcementService.ListMine(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, api.logger, err, "获取公告列表失败")
		return
	}

	response.Success(c, "获取成功", items)
}

// Delete 撤下公告
func (api *AnnouncementApi) Delete(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		response.Unauthorized(c, "需要登录", nil)
		return
	}
	role, _ := middleware.GetUserRole(c)

	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "无效的公告ID", err)
		return
	}

	if err := api.announcementService.Delete(c.Request.Context(), uint(id), userID, role); err != nil {
		handleServiceError(c, api.logger, err, "撤下公告失败")
		return
	}

	response.Success(c, "撤下成功", nil)
}
