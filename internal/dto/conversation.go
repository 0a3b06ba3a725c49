package dto

import (
	"time"
)

// ConversationOpenRequest 打开会话请求（find-or-create）
type ConversationOpenRequest struct {
	PeerID  uint   `json:"peer_id" binding:"required"`
	Subject string `json:"subject" binding:"omitempty,max=200"`
}

// ConversationItem 会话列表条目
type ConversationItem struct {
	ID            uint      `json:"id"`
	PeerID        uint      `json:"peer_id"`
	PeerName      string    `json:"peer_name"`
	Subject       string    `json:"subject"`
	LastMessageAt time.Time `json:"last_message_at"`
	UnreadCount   int64     `json:"unread_count"`
}

// MessageSendRequest 发送消息请求
type MessageSendRequest struct {
	Content string `json:"content" binding:"required"`
}

// MessageItem 消息条目
type MessageItem struct {
	ID             int64     `json:"id"`
	ConversationID uint      `json:"conversation_id"`
	SenderID       uint      `json:"sender_id"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessagesReadResult 会话已读结果
type MessagesReadResult struct {
	Count int64 `json:"count"`
}
