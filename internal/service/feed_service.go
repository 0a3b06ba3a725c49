package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nsxzhou1114/campus-api/internal/dto"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// markAllReadConcurrency 批量已读的并发上限
const markAllReadConcurrency = 8

var (
	feedService     *FeedService
	feedServiceOnce sync.Once
)

// FeedService 统一信息流聚合服务
// 把按用户的通知流和按受众的公告流合并成一条有序、去重、带已读状态的信息流
type FeedService struct {
	store  store.Store
	logger *zap.SugaredLogger
}

// NewFeedService 创建信息流服务单例
func NewFeedService() *FeedService {
	feedServiceOnce.Do(func() {
		feedService = &FeedService{
			store:  GetStore(),
			logger: logger.GetSugaredLogger(),
		}
	})
	return feedService
}

// NewFeedServiceWith 以指定存储创建信息流服务（测试用）
func NewFeedServiceWith(st store.Store, lg *zap.SugaredLogger) *FeedService {
	return &FeedService{store: st, logger: lg}
}

// projectNotification 通知投影为统一信息流条目
func projectNotification(n *model.Notification) dto.UnifiedFeedItem {
	item := dto.UnifiedFeedItem{
		ID:         n.ID,
		SourceKind: store.KindNotification,
		Title:      n.Title,
		Body:       n.Content,
		Priority:   n.Priority,
		Category:   n.Category,
		SenderName: "系统",
		SenderRole: "system",
		CreatedAt:  n.CreatedAt,
		IsRead:     n.IsRead == 1,
	}
	if n.Sender != nil {
		item.SenderName = n.Sender.Name
		item.SenderRole = n.Sender.Role
	}
	return item
}

// projectAnnouncement 公告投影为统一信息流条目
func projectAnnouncement(a *model.Announcement, isRead bool) dto.UnifiedFeedItem {
	return dto.UnifiedFeedItem{
		ID:            a.ID,
		SourceKind:    store.KindAnnouncement,
		Title:         a.Title,
		Body:          a.Content,
		Priority:      a.Priority,
		Category:      a.Category,
		SenderName:    a.Author.Name,
		SenderRole:    a.Author.Role,
		CreatedAt:     a.CreatedAt,
		IsRead:        isRead,
		AudienceScope: a.AudienceScope(),
	}
}

// sortFeedItems 信息流排序
// (优先级降序, 创建时间降序)，优先级和时间都相同时按(source_kind, id)
// 稳定决胜，保证数据不变则重复查询结果逐项一致
func sortFeedItems(items []dto.UnifiedFeedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ra, rb := model.PriorityRank(a.Priority), model.PriorityRank(b.Priority); ra != rb {
			return ra > rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.SourceKind != b.SourceKind {
			return a.SourceKind < b.SourceKind
		}
		return a.ID < b.ID
	})
}

// matchFilter 判断条目是否通过过滤条件
// 关键词做大小写不敏感的子串匹配，范围是标题+正文+发送者名
func matchFilter(item *dto.UnifiedFeedItem, req *dto.FeedListRequest) bool {
	if req.Category != "" && item.Category != req.Category {
		return false
	}
	if req.Priority != "" && item.Priority != req.Priority {
		return false
	}
	if req.Keyword != "" {
		keyword := strings.ToLower(req.Keyword)
		haystack := strings.ToLower(item.Title + "\n" + item.Body + "\n" + item.SenderName)
		if !strings.Contains(haystack, keyword) {
			return false
		}
	}
	return true
}

// GetUnifiedFeed 获取用户的统一信息流
// 合并属于该用户的通知和受众谓词命中且未过期的公告；过滤在合并排序
// 之后做，排序逻辑保持唯一出处
func (s *FeedService) GetUnifiedFeed(ctx context.Context, userID uint, req *dto.FeedListRequest) ([]dto.UnifiedFeedItem, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	courses, err := s.store.ListUserCourses(ctx, userID)
	if err != nil {
		return nil, err
	}

	notifications, err := s.store.ListNotifications(ctx, store.NotificationFilter{RecipientID: userID})
	if err != nil {
		return nil, err
	}
	announcements, err := s.store.ListAnnouncements(ctx, store.AnnouncementFilter{})
	if err != nil {
		return nil, err
	}
	readIDs, err := s.store.ListAnnouncementReadIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]dto.UnifiedFeedItem, 0, len(notifications)+len(announcements))
	for i := range notifications {
		items = append(items, projectNotification(&notifications[i]))
	}
	for i := range announcements {
		a := &announcements[i]
		if a.Expired(now) || !a.MatchesAudience(user, courses) {
			continue
		}
		items = append(items, projectAnnouncement(a, readIDs[a.ID]))
	}

	sortFeedItems(items)

	if req != nil && (req.Category != "" || req.Priority != "" || req.Keyword != "") {
		filtered := items[:0]
		for _, item := range items {
			if matchFilter(&item, req) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	if req != nil && req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return items, nil
}

// MarkRead 标记单个条目已读
// 幂等：重复标记返回true；条目已消失返回false而不是报错，
// 因为界面可能与删除/过期发生竞争
func (s *FeedService) MarkRead(ctx context.Context, userID, itemID uint, sourceKind string) (bool, error) {
	switch sourceKind {
	case store.KindNotification:
		return s.store.SetNotificationRead(ctx, itemID, userID)
	case store.KindAnnouncement:
		return s.store.MarkAnnouncementRead(ctx, userID, itemID)
	default:
		return false, ErrInvalidSourceKind
	}
}

// MarkAllRead 将当前信息流中所有未读条目标记为已读
// 并发扇出后汇合全部结果；失败条目收集返回而不中断批次，
// 条目中途消失不算失败，单独计入跳过数
func (s *FeedService) MarkAllRead(ctx context.Context, userID uint) (*dto.MarkAllReadResult, error) {
	items, err := s.GetUnifiedFeed(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	result := &dto.MarkAllReadResult{Failed: make([]dto.FeedItemRef, 0)}

	var mutex sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(markAllReadConcurrency)

	for _, item := range items {
		if item.IsRead {
			continue
		}
		ref := dto.FeedItemRef{ID: item.ID, SourceKind: item.SourceKind}
		group.Go(func() error {
			marked, err := s.MarkRead(groupCtx, userID, ref.ID, ref.SourceKind)
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err != nil:
				result.Failed = append(result.Failed, ref)
			case !marked:
				result.Skipped++
			default:
				result.Succeeded++
			}
			return nil
		})
	}

	// 等待全部完成，单条失败不终止批次
	_ = group.Wait()

	if len(result.Failed) > 0 {
		s.logger.Warnf("批量标记已读部分失败: 用户%d 成功%d 失败%d", userID, result.Succeeded, len(result.Failed))
	}
	return result, nil
}

// UnreadCount 统计未读条目数量（通知+可见未过期公告）
func (s *FeedService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	count, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, err
	}

	items, err := s.GetUnifiedFeed(ctx, userID, nil)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		if item.SourceKind == store.KindAnnouncement && !item.IsRead {
			count++
		}
	}
	return count, nil
}
