package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nsxzhou1114/campus-api/internal/model"
	"gorm.io/gorm"
)

// 错误分类
// ErrNotFound 属于良性错误，调用方通常降级为false/空操作
// ErrDuplicate 只在find-or-create的对账路径内部消化，不向上层暴露
// ErrStoreUnavailable 属于瞬态错误，调用方可带退避重试
var (
	ErrNotFound         = errors.New("记录不存在")
	ErrDuplicate        = errors.New("记录已存在")
	ErrStoreUnavailable = errors.New("存储暂不可用")
)

// Store 记录存储适配层
// 只提供类型化的CRUD、过滤查询与变更事件，不承载任何业务规则
// 底层连接在所有组件间共享，实现必须可并发使用
type Store interface {
	// 用户
	GetUser(ctx context.Context, id uint) (*model.User, error)
	ListUserCourses(ctx context.Context, userID uint) ([]string, error)

	// 通知
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id uint) (*model.Notification, error)
	ListNotifications(ctx context.Context, f NotificationFilter) ([]model.Notification, error)
	SetNotificationRead(ctx context.Context, id, recipientID uint) (bool, error)
	CountUnreadNotifications(ctx context.Context, userID uint) (int64, error)
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// 公告
	CreateAnnouncement(ctx context.Context, a *model.Announcement) error
	GetAnnouncement(ctx context.Context, id uint) (*model.Announcement, error)
	ListAnnouncements(ctx context.Context, f AnnouncementFilter) ([]model.Announcement, error)
	DeleteAnnouncement(ctx context.Context, id uint) (bool, error)
	MarkAnnouncementRead(ctx context.Context, userID, announcementID uint) (bool, error)
	ListAnnouncementReadIDs(ctx context.Context, userID uint) (map[uint]bool, error)
	DeleteAnnouncementsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// 会话
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id uint) (*model.Conversation, error)
	FindConversationByPair(ctx context.Context, low, high uint) (*model.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID uint) ([]model.Conversation, error)
	TouchConversation(ctx context.Context, id uint, at time.Time) error

	// 消息
	CreateMessage(ctx context.Context, m *model.Message) error
	ListMessages(ctx context.Context, conversationID uint) ([]model.Message, error)
	MarkConversationMessagesRead(ctx context.Context, conversationID, readerID uint) (int64, error)
	CountUnreadMessages(ctx context.Context, conversationID, userID uint) (int64, error)

	// Bus 变更事件总线
	Bus() Bus
}

// NotificationFilter 通知过滤条件
type NotificationFilter struct {
	RecipientID uint
	UnreadOnly  bool
}

// AnnouncementFilter 公告过滤条件
type AnnouncementFilter struct {
	AuthorID uint // 非零时只查该作者
}

// translate 将gorm错误翻译为本层错误分类
func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %v: %w", op, err, ErrStoreUnavailable)
	default:
		return fmt.Errorf("%s: %v: %w", op, err, ErrStoreUnavailable)
	}
}
