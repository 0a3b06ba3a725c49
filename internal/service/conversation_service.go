package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nsxzhou1114/campus-api/internal/dto"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/internal/store"
	"github.com/nsxzhou1114/campus-api/pkg/idgen"
	"go.uber.org/zap"
)

var (
	conversationService     *ConversationService
	conversationServiceOnce sync.Once
)

// ConversationService 会话服务
// 负责参与者对到唯一会话的解析、消息排序和已读回执记账
type ConversationService struct {
	store  store.Store
	logger *zap.SugaredLogger
}

// NewConversationService 创建会话服务单例
func NewConversationService() *ConversationService {
	conversationServiceOnce.Do(func() {
		conversationService = &ConversationService{
			store:  GetStore(),
			logger: logger.GetSugaredLogger(),
		}
	})
	return conversationService
}

// NewConversationServiceWith 以指定存储创建会话服务（测试用）
func NewConversationServiceWith(st store.Store, lg *zap.SugaredLogger) *ConversationService {
	return &ConversationService{store: st, logger: lg}
}

// FindOrCreate 解析参与者对对应的唯一会话，不存在则创建
// 并发调用同一对用户时依赖唯一索引决出唯一一条记录：创建撞到
// 唯一键冲突说明别人先赢，重新查询返回赢家的ID，冲突不向上暴露
func (s *ConversationService) FindOrCreate(ctx context.Context, userA, userB uint, subjectHint string) (uint, error) {
	if userA == userB {
		return 0, ErrSameParticipant
	}

	// 两个参与者都必须存在
	if _, err := s.store.GetUser(ctx, userA); err != nil {
		return 0, err
	}
	if _, err := s.store.GetUser(ctx, userB); err != nil {
		return 0, err
	}

	low, high := model.NormalizePair(userA, userB)

	existing, err := s.store.FindConversationByPair(ctx, low, high)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	conversation := &model.Conversation{
		ParticipantLow:  low,
		ParticipantHigh: high,
		Subject:         strings.TrimSpace(subjectHint),
		LastMessageAt:   time.Now(),
	}
	createErr := s.store.CreateConversation(ctx, conversation)
	if createErr == nil {
		return conversation.ID, nil
	}
	if !errors.Is(createErr, store.ErrDuplicate) {
		return 0, createErr
	}

	// 创建冲突，对账：查出先创建成功的那条
	winner, err := s.store.FindConversationByPair(ctx, low, high)
	if err != nil {
		return 0, err
	}
	return winner.ID, nil
}

// GetMessagesFor 获取会话全部消息，要求读取者是参与者
func (s *ConversationService) GetMessagesFor(ctx context.Context, conversationID, readerID uint) ([]dto.MessageItem, error) {
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(readerID) {
		return nil, ErrNotParticipant
	}
	return s.GetMessages(ctx, conversationID)
}

// GetMessages 获取会话全部消息，按(created_at, id)升序
func (s *ConversationService) GetMessages(ctx context.Context, conversationID uint) ([]dto.MessageItem, error) {
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	items := make([]dto.MessageItem, 0, len(messages))
	for i := range messages {
		items = append(items, projectMessage(&messages[i]))
	}
	return items, nil
}

// Send 发送消息
// 发送者必须是会话参与者，内容去除首尾空白后不能为空；
// 新消息以未读状态落库。调用方可先乐观展示本地副本，权威副本
// 经实时分发回流后按ID替换，不重复追加
func (s *ConversationService) Send(ctx context.Context, conversationID, senderID uint, content string) (*dto.MessageItem, error) {
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrEmptyContent
	}

	id, err := idgen.GenerateID()
	if err != nil {
		return nil, err
	}

	message := &model.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        trimmed,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateMessage(ctx, message); err != nil {
		return nil, err
	}

	if err := s.store.TouchConversation(ctx, conversationID, message.CreatedAt); err != nil {
		s.logger.Warnf("更新会话时间失败: 会话%d: %v", conversationID, err)
	}

	item := projectMessage(message)
	return &item, nil
}

// MarkMessagesRead 将会话中对方发送的消息全部标记已读
// 用户打开或重新聚焦会话时调用，幂等，返回本次改写的条数
func (s *ConversationService) MarkMessagesRead(ctx context.Context, conversationID, readerID uint) (int64, error) {
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conversation.HasParticipant(readerID) {
		return 0, ErrNotParticipant
	}

	return s.store.MarkConversationMessagesRead(ctx, conversationID, readerID)
}

// ListConversations 获取用户参与的会话列表，含对方信息和未读数
func (s *ConversationService) ListConversations(ctx context.Context, userID uint) ([]dto.ConversationItem, error) {
	conversations, err := s.store.ListConversationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]dto.ConversationItem, 0, len(conversations))
	for i := range conversations {
		c := &conversations[i]
		item := dto.ConversationItem{
			ID:            c.ID,
			PeerID:        c.PeerOf(userID),
			Subject:       c.Subject,
			LastMessageAt: c.LastMessageAt,
		}

		if peer, err := s.store.GetUser(ctx, item.PeerID); err == nil {
			item.PeerName = peer.Name
		}
		if count, err := s.store.CountUnreadMessages(ctx, c.ID, userID); err == nil {
			item.UnreadCount = count
		}

		items = append(items, item)
	}
	return items, nil
}

// projectMessage 消息投影为响应条目
func projectMessage(m *model.Message) dto.MessageItem {
	return dto.MessageItem{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		IsRead:         m.IsRead == 1,
		CreatedAt:      m.CreatedAt,
	}
}
