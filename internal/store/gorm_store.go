package store

import (
	"context"
	"errors"
	"time"

	"github.com/nsxzhou1114/campus-api/internal/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormStore 基于gorm的记录存储实现
type GormStore struct {
	db     *gorm.DB
	bus    Bus
	logger *zap.SugaredLogger
}

// NewGormStore 创建记录存储实例
func NewGormStore(db *gorm.DB, bus Bus, logger *zap.SugaredLogger) *GormStore {
	return &GormStore{db: db, bus: bus, logger: logger}
}

// Bus 获取变更事件总线
func (s *GormStore) Bus() Bus {
	return s.bus
}

// publish 发布变更事件，失败只记日志不影响主流程
func (s *GormStore) publish(ctx context.Context, topic string, ev Event) {
	if err := s.bus.Publish(ctx, topic, ev); err != nil {
		s.logger.Warnf("发布变更事件失败: topic=%s kind=%s op=%s: %v", topic, ev.Kind, ev.Op, err)
	}
}

// GetUser 获取用户
func (s *GormStore) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err, "查询用户")
	}
	return &user, nil
}

// ListUserCourses 获取用户选课的课程号列表
func (s *GormStore) ListUserCourses(ctx context.Context, userID uint) ([]string, error) {
	var courses []string
	err := s.db.WithContext(ctx).Model(&model.Enrollment{}).
		Where("user_id = ?", userID).
		Pluck("course_code", &courses).Error
	if err != nil {
		return nil, translate(err, "查询选课记录")
	}
	return courses, nil
}

// CreateNotification 创建通知并发布插入事件
func (s *GormStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return translate(err, "创建通知")
	}

	// 预加载发送者信息，保证事件载荷与查询结果同形
	if err := s.db.WithContext(ctx).Preload("Sender").First(n, n.ID).Error; err != nil {
		s.logger.Warnf("加载通知关联数据失败: %v", err)
	}

	s.publish(ctx, TopicFeedUser(n.RecipientID), NewEvent(KindNotification, OpInsert, int64(n.ID), n))
	return nil
}

// GetNotification 获取通知
func (s *GormStore) GetNotification(ctx context.Context, id uint) (*model.Notification, error) {
	var n model.Notification
	if err := s.db.WithContext(ctx).Preload("Sender").First(&n, id).Error; err != nil {
		return nil, translate(err, "查询通知")
	}
	return &n, nil
}

// ListNotifications 按条件查询通知列表
func (s *GormStore) ListNotifications(ctx context.Context, f NotificationFilter) ([]model.Notification, error) {
	query := s.db.WithContext(ctx).Model(&model.Notification{}).Preload("Sender")
	if f.RecipientID != 0 {
		query = query.Where("recipient_id = ?", f.RecipientID)
	}
	if f.UnreadOnly {
		query = query.Where("is_read = 0")
	}

	var notifications []model.Notification
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, translate(err, "查询通知列表")
	}
	return notifications, nil
}

// SetNotificationRead 标记通知已读
// 通知不存在或不属于该用户时返回false；重复标记直接成功
func (s *GormStore) SetNotificationRead(ctx context.Context, id, recipientID uint) (bool, error) {
	var n model.Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translate(err, "查询通知")
	}

	if n.IsRead == 1 {
		// 幂等：已读不再改写
		return true, nil
	}

	if err := s.db.WithContext(ctx).Model(&n).Update("is_read", 1).Error; err != nil {
		return false, translate(err, "标记通知已读")
	}

	n.IsRead = 1
	s.publish(ctx, TopicFeedUser(recipientID), NewEvent(KindNotification, OpUpdate, int64(n.ID), &n))
	return true, nil
}

// CountUnreadNotifications 统计未读通知数量
func (s *GormStore) CountUnreadNotifications(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = 0", userID).
		Count(&count).Error
	if err != nil {
		return 0, translate(err, "统计未读通知")
	}
	return count, nil
}

// DeleteReadNotificationsBefore 删除指定时间前的已读通知
func (s *GormStore) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("is_read = 1 AND updated_at < ?", cutoff).
		Delete(&model.Notification{})
	if result.Error != nil {
		return 0, translate(result.Error, "清理已读通知")
	}
	return result.RowsAffected, nil
}

// CreateAnnouncement 创建公告并发布广播事件
func (s *GormStore) CreateAnnouncement(ctx context.Context, a *model.Announcement) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return translate(err, "创建公告")
	}

	if err := s.db.WithContext(ctx).Preload("Author").First(a, a.ID).Error; err != nil {
		s.logger.Warnf("加载公告关联数据失败: %v", err)
	}

	s.publish(ctx, TopicAnnouncements, NewEvent(KindAnnouncement, OpInsert, int64(a.ID), a))
	return nil
}

// GetAnnouncement 获取公告
func (s *GormStore) GetAnnouncement(ctx context.Context, id uint) (*model.Announcement, error) {
	var a model.Announcement
	if err := s.db.WithContext(ctx).Preload("Author").First(&a, id).Error; err != nil {
		return nil, translate(err, "查询公告")
	}
	return &a, nil
}

// ListAnnouncements 查询公告列表
// 受众匹配与过期判断属于业务语义，由上层求值，这里不过滤
func (s *GormStore) ListAnnouncements(ctx context.Context, f AnnouncementFilter) ([]model.Announcement, error) {
	query := s.db.WithContext(ctx).Model(&model.Announcement{}).Preload("Author")
	if f.AuthorID != 0 {
		query = query.Where("author_id = ?", f.AuthorID)
	}

	var announcements []model.Announcement
	if err := query.Order("created_at DESC").Find(&announcements).Error; err != nil {
		return nil, translate(err, "查询公告列表")
	}
	return announcements, nil
}

// DeleteAnnouncement 删除公告
func (s *GormStore) DeleteAnnouncement(ctx context.Context, id uint) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&model.Announcement{}, id)
	if result.Error != nil {
		return false, translate(result.Error, "删除公告")
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	s.publish(ctx, TopicAnnouncements, NewEvent(KindAnnouncement, OpDelete, int64(id), nil))
	return true, nil
}

// MarkAnnouncementRead 记录公告已读
// 公告不存在时返回false；已有已读记录时幂等成功
func (s *GormStore) MarkAnnouncementRead(ctx context.Context, userID, announcementID uint) (bool, error) {
	var a model.Announcement
	err := s.db.WithContext(ctx).Preload("Author").First(&a, announcementID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translate(err, "查询公告")
	}

	read := model.AnnouncementRead{UserID: userID, AnnouncementID: announcementID}
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND announcement_id = ?", userID, announcementID).
		FirstOrCreate(&read)
	if result.Error != nil {
		// 并发下的唯一键冲突等同于已存在
		if errors.Is(translate(result.Error, ""), ErrDuplicate) {
			return true, nil
		}
		return false, translate(result.Error, "记录公告已读")
	}

	if result.RowsAffected > 0 {
		// 新产生的已读记录，通知该用户的其他会话同步已读状态
		s.publish(ctx, TopicFeedUser(userID), NewEvent(KindAnnouncement, OpUpdate, int64(announcementID), &a))
	}
	return true, nil
}

// ListAnnouncementReadIDs 获取用户已读公告ID集合
func (s *GormStore) ListAnnouncementReadIDs(ctx context.Context, userID uint) (map[uint]bool, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&model.AnnouncementRead{}).
		Where("user_id = ?", userID).
		Pluck("announcement_id", &ids).Error
	if err != nil {
		return nil, translate(err, "查询公告已读记录")
	}

	read := make(map[uint]bool, len(ids))
	for _, id := range ids {
		read[id] = true
	}
	return read, nil
}

// DeleteAnnouncementsExpiredBefore 删除过期已久的公告及其已读记录
func (s *GormStore) DeleteAnnouncementsExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&model.Announcement{}).
		Where("expires_at IS NOT NULL AND expires_at < ?", cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, translate(err, "查询过期公告")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.db.WithContext(ctx).Where("announcement_id IN ?", ids).
		Delete(&model.AnnouncementRead{}).Error; err != nil {
		return 0, translate(err, "清理公告已读记录")
	}

	result := s.db.WithContext(ctx).Delete(&model.Announcement{}, ids)
	if result.Error != nil {
		return 0, translate(result.Error, "清理过期公告")
	}
	return result.RowsAffected, nil
}

// CreateConversation 创建会话
// 同一参与者对并发创建时，唯一索引保证只有一条落库，冲突方收到ErrDuplicate
func (s *GormStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return translate(err, "创建会话")
	}
	return nil
}

// GetConversation 获取会话
func (s *GormStore) GetConversation(ctx context.Context, id uint) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err, "查询会话")
	}
	return &c, nil
}

// FindConversationByPair 按归一化参与者对查找会话
func (s *GormStore) FindConversationByPair(ctx context.Context, low, high uint) (*model.Conversation, error) {
	var c model.Conversation
	err := s.db.WithContext(ctx).
		Where("participant_low = ? AND participant_high = ?", low, high).
		First(&c).Error
	if err != nil {
		return nil, translate(err, "查询会话")
	}
	return &c, nil
}

// ListConversationsByUser 查询用户参与的会话列表
func (s *GormStore) ListConversationsByUser(ctx context.Context, userID uint) ([]model.Conversation, error) {
	var conversations []model.Conversation
	err := s.db.WithContext(ctx).
		Where("participant_low = ? OR participant_high = ?", userID, userID).
		Order("last_message_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, translate(err, "查询会话列表")
	}
	return conversations, nil
}

// TouchConversation 更新会话最近消息时间
func (s *GormStore) TouchConversation(ctx context.Context, id uint, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("id = ?", id).
		Update("last_message_at", at).Error
	if err != nil {
		return translate(err, "更新会话时间")
	}
	return nil
}

// CreateMessage 创建消息并发布到会话主题
func (s *GormStore) CreateMessage(ctx context.Context, m *model.Message) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return translate(err, "创建消息")
	}

	s.publish(ctx, TopicConversation(m.ConversationID), NewEvent(KindMessage, OpInsert, m.ID, m))
	return nil
}

// ListMessages 查询会话全部消息，按(created_at, id)升序
func (s *GormStore) ListMessages(ctx context.Context, conversationID uint) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, translate(err, "查询消息列表")
	}
	return messages, nil
}

// ReadMark 会话已读回执载荷
type ReadMark struct {
	ConversationID uint  `json:"conversation_id"`
	ReaderID       uint  `json:"reader_id"`
	Count          int64 `json:"count"`
}

// MarkConversationMessagesRead 将会话内非读者发送的消息全部置为已读
// 返回本次实际改写的消息数，重复调用返回0
func (s *GormStore) MarkConversationMessagesRead(ctx context.Context, conversationID, readerID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = 0", conversationID, readerID).
		Update("is_read", 1)
	if result.Error != nil {
		return 0, translate(result.Error, "标记消息已读")
	}

	if result.RowsAffected > 0 {
		mark := ReadMark{ConversationID: conversationID, ReaderID: readerID, Count: result.RowsAffected}
		s.publish(ctx, TopicConversation(conversationID), NewEvent(KindMessage, OpUpdate, 0, &mark))
	}
	return result.RowsAffected, nil
}

// CountUnreadMessages 统计会话内用户未读消息数量
func (s *GormStore) CountUnreadMessages(ctx context.Context, conversationID, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = 0", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return 0, translate(err, "统计未读消息")
	}
	return count, nil
}
