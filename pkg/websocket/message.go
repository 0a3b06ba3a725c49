package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsxzhou1114/campus-api/internal/dto"
	"github.com/redis/go-redis/v9"
)

// Frame 推送帧接口
type Frame interface {
	ToJSON() ([]byte, error)
}

// FeedFrame 信息流条目推送帧
type FeedFrame struct {
	Type      string              `json:"type"`
	Data      dto.UnifiedFeedItem `json:"data"`
	Timestamp int64               `json:"timestamp"`
}

// ToJSON 将帧转换为JSON
func (f *FeedFrame) ToJSON() ([]byte, error) {
	return json.Marshal(f)
}

// ConversationFrame 会话事件推送帧
type ConversationFrame struct {
	Type           string `json:"type"`
	ConversationID uint   `json:"conversation_id"`
	Data           any    `json:"data"`
	Timestamp      int64  `json:"timestamp"`
}

// ToJSON 将帧转换为JSON
func (f *ConversationFrame) ToJSON() ([]byte, error) {
	return json.Marshal(f)
}

// NewFeedFrame 创建信息流推送帧
func NewFeedFrame(item dto.UnifiedFeedItem) *FeedFrame {
	return &FeedFrame{
		Type:      "feed_item",
		Data:      item,
		Timestamp: time.Now().Unix(),
	}
}

// NewConversationFrame 创建会话事件推送帧
func NewConversationFrame(conversationID uint, data any) *ConversationFrame {
	return &ConversationFrame{
		Type:           "conversation_event",
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().Unix(),
	}
}

// OfflineFeedStore 离线推送缓冲接口
// 投递不出去的信息流条目先落缓冲，用户下次上线时补发
type OfflineFeedStore interface {
	StoreOfflineItem(ctx context.Context, userID uint, item dto.UnifiedFeedItem) error
	GetOfflineItems(ctx context.Context, userID uint) ([]dto.UnifiedFeedItem, error)
	ClearOfflineItems(ctx context.Context, userID uint) error
}

// RedisOfflineFeedStore Redis离线推送缓冲实现
type RedisOfflineFeedStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisOfflineFeedStore 创建Redis离线推送缓冲
func NewRedisOfflineFeedStore(client *redis.Client) *RedisOfflineFeedStore {
	return &RedisOfflineFeedStore{
		redis:  client,
		prefix: "offline_feed:",
	}
}

// StoreOfflineItem 缓冲一条离线条目，保存7天，最多100条
func (s *RedisOfflineFeedStore) StoreOfflineItem(ctx context.Context, userID uint, item dto.UnifiedFeedItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("序列化离线条目失败: %w", err)
	}

	key := s.getKey(userID)
	pipe := s.redis.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.Expire(ctx, key, 7*24*time.Hour)
	pipe.LTrim(ctx, key, 0, 99)

	_, err = pipe.Exec(ctx)
	return err
}

// GetOfflineItems 获取缓冲的离线条目
func (s *RedisOfflineFeedStore) GetOfflineItems(ctx context.Context, userID uint) ([]dto.UnifiedFeedItem, error) {
	key := s.getKey(userID)
	data, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	items := make([]dto.UnifiedFeedItem, 0, len(data))
	for _, raw := range data {
		var item dto.UnifiedFeedItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// ClearOfflineItems 清空缓冲
func (s *RedisOfflineFeedStore) ClearOfflineItems(ctx context.Context, userID uint) error {
	return s.redis.Del(ctx, s.getKey(userID)).Err()
}

func (s *RedisOfflineFeedStore) getKey(userID uint) string {
	return fmt.Sprintf("%s%d", s.prefix, userID)
}
