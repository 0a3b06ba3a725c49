package service

import (
	"context"
	"sync"
	"time"

	"github.com/nsxzhou1114/campus-api/internal/config"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	cleanupService     *CleanupService
	cleanupServiceOnce sync.Once
)

// CleanupService 留存清理服务
// 定期删除超过保留期的已读通知和早已过期的公告
type CleanupService struct {
	store  store.Store
	logger *zap.SugaredLogger
	cron   *cron.Cron
}

// NewCleanupService 创建清理服务单例
func NewCleanupService() *CleanupService {
	cleanupServiceOnce.Do(func() {
		cleanupService = &CleanupService{
			store:  GetStore(),
			logger: logger.GetSugaredLogger(),
		}
	})
	return cleanupService
}

// NewCleanupServiceWith 以指定存储创建清理服务（测试用）
func NewCleanupServiceWith(st store.Store, lg *zap.SugaredLogger) *CleanupService {
	return &CleanupService{store: st, logger: lg}
}

// Start 按配置的cron表达式启动清理任务，表达式为空则不启动
func (s *CleanupService) Start() error {
	spec := config.GlobalConfig.Cleanup.Spec
	if spec == "" {
		s.logger.Info("清理任务未配置，跳过启动")
		return nil
	}

	s.cron = cron.New(cron.WithSeconds())
	if _, err := s.cron.AddFunc(spec, func() {
		s.RunOnce(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Infof("清理任务已启动: %s", spec)
	return nil
}

// Stop 停止清理任务
func (s *CleanupService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunOnce 执行一轮清理
func (s *CleanupService) RunOnce(ctx context.Context) {
	cfg := config.GlobalConfig.Cleanup
	now := time.Now()

	readCutoff := now.AddDate(0, 0, -cfg.ReadRetentionDays)
	deleted, err := s.store.DeleteReadNotificationsBefore(ctx, readCutoff)
	if err != nil {
		s.logger.Errorf("清理已读通知失败: %v", err)
	} else if deleted > 0 {
		s.logger.Infof("清理已读通知: 删除%d条", deleted)
	}

	expiredCutoff := now.AddDate(0, 0, -cfg.ExpiredRetentionDays)
	deleted, err = s.store.DeleteAnnouncementsExpiredBefore(ctx, expiredCutoff)
	if err != nil {
		s.logger.Errorf("清理过期公告失败: %v", err)
	} else if deleted > 0 {
		s.logger.Infof("清理过期公告: 删除%d条", deleted)
	}
}
