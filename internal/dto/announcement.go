package dto

import (
	"time"
)

// AnnouncementCreateRequest 创建公告请求
type AnnouncementCreateRequest struct {
	Title         string     `json:"title" binding:"required,max=200"`
	Content       string     `json:"content" binding:"required"`
	Category      string     `json:"category" binding:"omitempty,max=50"`
	Priority      string     `json:"priority" binding:"omitempty,priority"`
	AudienceKind  string     `json:"audience_kind" binding:"omitempty,audience"`
	AudienceValue string     `json:"audience_value" binding:"omitempty,max=50"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Reference     string     `json:"reference" binding:"omitempty,max=255"`
}

// AnnouncementResponse 公告响应
type AnnouncementResponse struct {
	ID            uint       `json:"id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	Category      string     `json:"category"`
	Priority      string     `json:"priority"`
	AudienceScope string     `json:"audience_scope"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Reference     string     `json:"reference,omitempty"`
	AuthorName    string     `json:"author_name"`
	CreatedAt     time.Time  `json:"created_at"`
}
