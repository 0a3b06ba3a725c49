package model

// 优先级
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// priorityRanks 优先级排序权重，数值越大越靠前
var priorityRanks = map[string]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// PriorityRank 获取优先级权重，未知优先级按low处理
func PriorityRank(priority string) int {
	return priorityRanks[priority]
}

// ValidPriority 校验优先级取值
func ValidPriority(priority string) bool {
	_, ok := priorityRanks[priority]
	return ok
}

// Notification 通知模型
// 由系统内任意生产方创建，本核心只改写已读标记
type Notification struct {
	Base
	RecipientID uint   `gorm:"type:int(11);not null;index" json:"recipient_id"`
	SenderID    *uint  `gorm:"type:int(11);index" json:"sender_id"` // 为空表示系统通知
	Title       string `gorm:"type:varchar(200);not null" json:"title"`
	Content     string `gorm:"type:text;not null" json:"content"`
	Category    string `gorm:"type:varchar(50);not null;index" json:"category"` // 通知分类: grade assignment enrollment system
	Priority    string `gorm:"type:varchar(10);not null;default:'medium';index" json:"priority"`
	IsRead      int    `gorm:"type:tinyint(1);not null;default:0;index" json:"is_read"` // 0=未读 1=已读
	ActionRef   string `gorm:"type:varchar(255)" json:"action_ref"` // 可选的跳转引用

	// 关联
	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}
