package model

import (
	"time"
)

// Conversation 会话模型
// 参与者对归一化存储（小ID在前），并加唯一索引保证同一对用户至多一个会话
type Conversation struct {
	Base
	ParticipantLow  uint      `gorm:"type:int(11);not null;uniqueIndex:idx_conversation_pair;index" json:"participant_low"`
	ParticipantHigh uint      `gorm:"type:int(11);not null;uniqueIndex:idx_conversation_pair;index" json:"participant_high"`
	Subject         string    `gorm:"type:varchar(200)" json:"subject"`
	LastMessageAt   time.Time `gorm:"index" json:"last_message_at"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversations"
}

// NormalizePair 归一化参与者对，保证low < high
func NormalizePair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// HasParticipant 判断用户是否为会话参与者
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.ParticipantLow == userID || c.ParticipantHigh == userID
}

// PeerOf 获取会话中对方的用户ID
func (c *Conversation) PeerOf(userID uint) uint {
	if c.ParticipantLow == userID {
		return c.ParticipantHigh
	}
	return c.ParticipantLow
}
