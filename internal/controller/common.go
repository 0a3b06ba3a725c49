package controller

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/campus-api/internal/service"
	"github.com/nsxzhou1114/campus-api/internal/store"
	"github.com/nsxzhou1114/campus-api/pkg/response"
	"go.uber.org/zap"
)

// handleServiceError 将服务层错误映射为统一响应
// 存储瞬态故障返回503提示重试，调用方误用类错误返回4xx
func handleServiceError(c *gin.Context, lg *zap.SugaredLogger, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.NotFound(c, "记录不存在", err)
	case errors.Is(err, store.ErrStoreUnavailable):
		lg.Errorf("%s: 存储暂不可用: %v", fallback, err)
		response.ServiceUnavailable(c, "服务暂不可用，请稍后重试", err)
	case errors.Is(err, service.ErrNotParticipant):
		response.Forbidden(c, "不是会话参与者", err)
	case errors.Is(err, service.ErrNotAuthor):
		response.Forbidden(c, "没有操作权限", err)
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrSameParticipant),
		errors.Is(err, service.ErrInvalidSourceKind),
		errors.Is(err, service.ErrAudienceValueRequired):
		response.BadRequest(c, err.Error(), err)
	default:
		lg.Errorf("%s: %v", fallback, err)
		response.InternalServerError(c, fallback, err)
	}
}
