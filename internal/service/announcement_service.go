package service

import (
	"context"
	"sync"

	"github.com/nsxzhou1114/campus-api/internal/dto"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/internal/store"
	"go.uber.org/zap"
)

var (
	announcementService     *AnnouncementService
	announcementServiceOnce sync.Once
)

// AnnouncementService 公告发布服务
type AnnouncementService struct {
	store  store.Store
	logger *zap.SugaredLogger
}

// NewAnnouncementService 创建公告服务单例
func NewAnnouncementService() *AnnouncementService {
	announcementServiceOnce.Do(func() {
		announcementService = &AnnouncementService{
			store:  GetStore(),
			logger: logger.GetSugaredLogger(),
		}
	})
	return announcementService
}

// NewAnnouncementServiceWith 以指定存储创建公告服务（测试用）
func NewAnnouncementServiceWith(st store.Store, lg *zap.SugaredLogger) *AnnouncementService {
	return &AnnouncementService{store: st, logger: lg}
}

// Create 发布公告
// 受众为空时默认公开；role/unit/course受众必须带取值
func (s *AnnouncementService) Create(ctx context.Context, authorID uint, req *dto.AnnouncementCreateRequest) (*dto.AnnouncementResponse, error) {
	author, err := s.store.GetUser(ctx, authorID)
	if err != nil {
		return nil, err
	}

	kind := req.AudienceKind
	if kind == "" {
		kind = model.AudiencePublic
	}
	if kind != model.AudiencePublic && req.AudienceValue == "" {
		return nil, ErrAudienceValueRequired
	}

	priority := req.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}

	announcement := &model.Announcement{
		AuthorID:      authorID,
		Title:         req.Title,
		Content:       req.Content,
		Category:      req.Category,
		Priority:      priority,
		AudienceKind:  kind,
		AudienceValue: req.AudienceValue,
		ExpiresAt:     req.ExpiresAt,
		Reference:     req.Reference,
	}
	if err := s.store.CreateAnnouncement(ctx, announcement); err != nil {
		return nil, err
	}
	announcement.Author = *author

	s.logger.Infof("公告已发布: ID%d 作者%d 受众%s", announcement.ID, authorID, announcement.AudienceScope())
	resp := projectAnnouncementResponse(announcement)
	return &resp, nil
}

// ListMine 获取指定作者发布的公告
func (s *AnnouncementService) ListMine(ctx context.Context, authorID uint) ([]dto.AnnouncementResponse, error) {
	announcements, err := s.store.ListAnnouncements(ctx, store.AnnouncementFilter{AuthorID: authorID})
	if err != nil {
		return nil, err
	}

	items := make([]dto.AnnouncementResponse, 0, len(announcements))
	for i := range announcements {
		items = append(items, projectAnnouncementResponse(&announcements[i]))
	}
	return items, nil
}

// Delete 撤下公告，只允许作者本人或管理员
func (s *AnnouncementService) Delete(ctx context.Context, announcementID, requesterID uint, requesterRole string) error {
	announcement, err := s.store.GetAnnouncement(ctx, announcementID)
	if err != nil {
		return err
	}
	if announcement.AuthorID != requesterID && requesterRole != model.RoleAdmin {
		return ErrNotAuthor
	}

	removed, err := s.store.DeleteAnnouncement(ctx, announcementID)
	if err != nil {
		return err
	}
	if removed {
		s.logger.Infof("公告已撤下: ID%d 操作人%d", announcementID, requesterID)
	}
	return nil
}

// projectAnnouncementResponse 公告投影为作者视角的响应
func projectAnnouncementResponse(a *model.Announcement) dto.AnnouncementResponse {
	return dto.AnnouncementResponse{
		ID:            a.ID,
		Title:         a.Title,
		Content:       a.Content,
		Category:      a.Category,
		Priority:      a.Priority,
		AudienceScope: a.AudienceScope(),
		ExpiresAt:     a.ExpiresAt,
		Reference:     a.Reference,
		AuthorName:    a.Author.Name,
		CreatedAt:     a.CreatedAt,
	}
}
