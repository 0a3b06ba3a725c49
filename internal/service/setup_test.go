package service

import (
	"testing"

	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/internal/store"
	"github.com/nsxzhou1114/campus-api/pkg/idgen"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestEnv 搭一套内存sqlite存储和进程内总线
func newTestEnv(t *testing.T) (*gorm.DB, store.Store, *store.MemoryBus) {
	t.Helper()

	if err := idgen.Init("2024-01-01", 1); err != nil {
		t.Fatalf("初始化ID生成器失败: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := model.InitTables(db); err != nil {
		t.Fatalf("初始化测试表失败: %v", err)
	}

	bus := store.NewMemoryBus(64)
	return db, store.NewGormStore(db, bus, zap.NewNop().Sugar()), bus
}

func seedUser(t *testing.T, db *gorm.DB, username, role, unit string) *model.User {
	t.Helper()
	user := &model.User{
		Username: username,
		Password: "x",
		Email:    username + "@campus.edu",
		Name:     username,
		Role:     role,
		OrgUnit:  unit,
		Status:   1,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}
	return user
}

func seedEnrollment(t *testing.T, db *gorm.DB, userID uint, course string) {
	t.Helper()
	if err := db.Create(&model.Enrollment{UserID: userID, CourseCode: course}).Error; err != nil {
		t.Fatalf("创建选课记录失败: %v", err)
	}
}
