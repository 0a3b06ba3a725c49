package dto

import (
	"time"
)

// UnifiedFeedItem 统一信息流条目
// 通知与公告投影成的公共形态，不落库；(source_kind, id) 为去重键
type UnifiedFeedItem struct {
	ID            uint      `json:"id"`
	SourceKind    string    `json:"source_kind"` // notification / announcement
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	Priority      string    `json:"priority"`
	Category      string    `json:"category"`
	SenderName    string    `json:"sender_name"`
	SenderRole    string    `json:"sender_role"`
	CreatedAt     time.Time `json:"created_at"`
	IsRead        bool      `json:"is_read"`
	AudienceScope string    `json:"audience_scope,omitempty"`
}

// FeedListRequest 信息流查询请求
// 分类/优先级/关键词都在合并后的结果上过滤，不下推到存储层
type FeedListRequest struct {
	Category string `form:"category"`
	Priority string `form:"priority" binding:"omitempty,priority"`
	Keyword  string `form:"keyword"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// FeedItemRef 信息流条目引用
type FeedItemRef struct {
	ID         uint   `json:"id"`
	SourceKind string `json:"source_kind"`
}

// MarkAllReadResult 批量已读结果
// 失败条目作为数据返回，调用方可只对失败子集重试；
// 中途消失的条目单独计数，不混入成功数
type MarkAllReadResult struct {
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    []FeedItemRef `json:"failed"`
}

// FeedUnreadCountResponse 未读数量响应
type FeedUnreadCountResponse struct {
	Count int64 `json:"count"`
}
