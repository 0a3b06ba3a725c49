package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// 记录类型，同时用作统一信息流条目的source_kind
const (
	KindNotification = "notification"
	KindAnnouncement = "announcement"
	KindConversation = "conversation"
	KindMessage      = "message"
)

// 事件操作类型
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event 记录变更事件
type Event struct {
	Kind    string          `json:"kind"`
	Op      string          `json:"op"`
	ID      int64           `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Decode 将事件载荷解码到目标记录
func (e *Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("事件载荷为空")
	}
	return json.Unmarshal(e.Payload, v)
}

// NewEvent 构造携带记录快照的变更事件
func NewEvent(kind, op string, id int64, record interface{}) Event {
	ev := Event{Kind: kind, Op: op, ID: id, At: time.Now()}
	if record != nil {
		if data, err := json.Marshal(record); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// 订阅主题
// 信息流事件按用户分流，公告创建/删除走广播主题，会话事件按会话分流
func TopicFeedUser(userID uint) string {
	return fmt.Sprintf("feed:user:%d", userID)
}

// TopicAnnouncements 公告广播主题
const TopicAnnouncements = "feed:announcements"

// TopicConversation 会话主题
func TopicConversation(conversationID uint) string {
	return fmt.Sprintf("conv:%d", conversationID)
}

// Bus 变更事件总线
// Subscribe返回的通道在ctx取消或底层连接断开时关闭
// 单个订阅通道内的事件保持接收顺序，跨通道不做任何顺序保证
type Bus interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(ctx context.Context, topics ...string) (<-chan Event, error)
}
