package model

import (
	"time"
)

// Message 会话消息模型
// ID由雪花算法生成，(created_at, id) 升序即为会话内全序
// 两人会话只需要一个已读标记：始终表示接收方是否已读
type Message struct {
	ID             int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ConversationID uint      `gorm:"type:int(11);not null;index:idx_message_conv_time" json:"conversation_id"`
	SenderID       uint      `gorm:"type:int(11);not null;index" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	IsRead         int       `gorm:"type:tinyint(1);not null;default:0;index" json:"is_read"` // 0=未读 1=已读
	CreatedAt      time.Time `gorm:"index:idx_message_conv_time" json:"created_at"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}
