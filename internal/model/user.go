package model

// 用户角色
const (
	RoleStudent  = "student"  // 学生
	RoleLecturer = "lecturer" // 教师
	RoleAdmin    = "admin"    // 管理员
)

// User 用户模型
// 身份与权限由外部认证系统签发，本核心只读取角色和归属属性做受众匹配
type User struct {
	Base
	Username string `gorm:"type:varchar(50);not null;uniqueIndex" json:"username"`
	Password string `gorm:"type:varchar(100);not null" json:"-"`
	Email    string `gorm:"type:varchar(100);not null;uniqueIndex" json:"email"`
	Name     string `gorm:"type:varchar(50)" json:"name"`
	Role     string `gorm:"type:varchar(20);not null;default:'student';index" json:"role"`
	OrgUnit  string `gorm:"type:varchar(50);index" json:"org_unit"` // 院系/部门
	Status   int    `gorm:"type:tinyint(2);not null;default:1" json:"status"` // 0=禁用 1=正常
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// Enrollment 选课记录，用于按课程受众匹配
type Enrollment struct {
	Base
	UserID     uint   `gorm:"type:int(11);not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseCode string `gorm:"type:varchar(50);not null;uniqueIndex:idx_enrollment_user_course;index" json:"course_code"`
}

// TableName 指定表名
func (Enrollment) TableName() string {
	return "enrollments"
}
