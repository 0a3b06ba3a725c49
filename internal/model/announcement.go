package model

import (
	"fmt"
	"time"
)

// 受众类型
const (
	AudiencePublic = "public" // 所有人可见
	AudienceRole   = "role"   // 指定角色可见
	AudienceUnit   = "unit"   // 指定院系可见
	AudienceCourse = "course" // 指定课程的选课学生可见
)

// audienceKinds 受众类型闭集
var audienceKinds = map[string]bool{
	AudiencePublic: true,
	AudienceRole:   true,
	AudienceUnit:   true,
	AudienceCourse: true,
}

// ValidAudienceKind 校验受众类型取值
func ValidAudienceKind(kind string) bool {
	return audienceKinds[kind]
}

// Announcement 公告模型
// 作者声明受众谓词，可见性在读取时对用户属性求值
type Announcement struct {
	Base
	AuthorID      uint       `gorm:"type:int(11);not null;index" json:"author_id"`
	Title         string     `gorm:"type:varchar(200);not null" json:"title"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	Category      string     `gorm:"type:varchar(50);not null;index" json:"category"`
	Priority      string     `gorm:"type:varchar(10);not null;default:'medium';index" json:"priority"`
	AudienceKind  string     `gorm:"type:varchar(10);not null;default:'public';index" json:"audience_kind"`
	AudienceValue string     `gorm:"type:varchar(50)" json:"audience_value"` // 角色名/院系名/课程号，public时为空
	ExpiresAt     *time.Time `gorm:"index" json:"expires_at"`                // 为空表示永不过期
	Reference     string     `gorm:"type:varchar(255)" json:"reference"`     // 可选的外部引用

	// 关联
	Author User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}

// TableName 指定表名
func (Announcement) TableName() string {
	return "announcements"
}

// MatchesAudience 判断公告受众谓词对用户是否成立
// courses为用户当前选课的课程号集合
func (a *Announcement) MatchesAudience(user *User, courses []string) bool {
	switch a.AudienceKind {
	case AudiencePublic:
		return true
	case AudienceRole:
		return user.Role == a.AudienceValue
	case AudienceUnit:
		return user.OrgUnit == a.AudienceValue
	case AudienceCourse:
		for _, code := range courses {
			if code == a.AudienceValue {
				return true
			}
		}
		return false
	default:
		// 未知受众类型一律不可见
		return false
	}
}

// Expired 判断公告在指定时刻是否已过期
func (a *Announcement) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// AudienceScope 受众范围的展示形式，如 public、role:lecturer
func (a *Announcement) AudienceScope() string {
	if a.AudienceKind == AudiencePublic {
		return AudiencePublic
	}
	return fmt.Sprintf("%s:%s", a.AudienceKind, a.AudienceValue)
}

// AnnouncementRead 公告已读记录
// 公告本身没有每用户的已读标记，用唯一键的已读行表达
type AnnouncementRead struct {
	Base
	UserID         uint `gorm:"type:int(11);not null;uniqueIndex:idx_announcement_read_pair" json:"user_id"`
	AnnouncementID uint `gorm:"type:int(11);not null;uniqueIndex:idx_announcement_read_pair;index" json:"announcement_id"`
}

// TableName 指定表名
func (AnnouncementRead) TableName() string {
	return "announcement_reads"
}
