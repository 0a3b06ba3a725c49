package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/campus-api/internal/config"
	"github.com/nsxzhou1114/campus-api/internal/database"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/internal/router"
	"github.com/nsxzhou1114/campus-api/internal/service"
	"github.com/nsxzhou1114/campus-api/internal/store"
	"github.com/nsxzhou1114/campus-api/pkg/auth"
	"github.com/nsxzhou1114/campus-api/pkg/idgen"
	"github.com/nsxzhou1114/campus-api/pkg/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "campus-api",
	Short: "校园门户通知消息服务",
	Long:  `校园门户的通知与私信核心服务，提供统一信息流、公告、会话消息和实时推送`,
}

// serveCmd 启动服务命令
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP服务",
	Long:  `启动通知消息服务的HTTP服务器`,
	Run: func(cmd *cobra.Command, args []string) {
		startServer()
	},
}

func init() {
	// 添加全局标志
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config", "配置文件路径")

	// 添加子命令
	rootCmd.AddCommand(serveCmd)
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// initializeSystem 初始化系统
func initializeSystem() error {
	// 初始化配置
	if err := config.Init(configPath); err != nil {
		return fmt.Errorf("配置初始化失败: %v", err)
	}

	// 初始化日志
	if err := logger.Init(); err != nil {
		return fmt.Errorf("日志初始化失败: %v", err)
	}

	// 初始化MySQL数据库
	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("MySQL数据库连接失败")
	}

	// 初始化数据库表
	if err := model.InitTables(db); err != nil {
		return fmt.Errorf("初始化数据库表失败: %v", err)
	}

	// 初始化雪花ID节点
	sf := config.GlobalConfig.Snowflake
	if err := idgen.Init(sf.StartTime, sf.MachineID); err != nil {
		return fmt.Errorf("初始化ID生成器失败: %v", err)
	}

	// Redis承载跨实例事件、离线缓冲和令牌黑名单
	rdb := database.GetRedis()
	auth.UseBlacklist(auth.NewRedisTokenBlacklist(rdb))

	// 初始化记录存储和服务层
	bus := store.NewRedisBus(rdb, config.GlobalConfig.Dispatch.EventBuffer)
	service.Setup(store.NewGormStore(db, bus, logger.GetSugaredLogger()))

	// 初始化WebSocket管理器
	websocketManager := websocket.GetManager()
	websocketManager.Initialize(service.NewDispatchService(), websocket.NewRedisOfflineFeedStore(rdb))

	return nil
}

// startServer 启动HTTP服务
func startServer() {
	// 初始化系统
	if err := initializeSystem(); err != nil {
		fmt.Printf("系统初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 启动留存清理任务
	cleanup := service.NewCleanupService()
	if err := cleanup.Start(); err != nil {
		logger.Fatal("清理任务启动失败", zap.Error(err))
	}
	defer cleanup.Stop()

	// 设置Gin模式
	gin.SetMode(config.GlobalConfig.App.Mode)

	// 初始化路由
	r := initRouter()

	// 启动HTTP服务
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.GlobalConfig.App.Port),
		Handler: r,
	}

	// 优雅关闭
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务启动失败", zap.Error(err))
		}
	}()

	logger.Info("服务已启动", zap.String("addr", srv.Addr))

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("关闭服务...")

	// 优雅关闭WebSocket管理器
	websocketManager := websocket.GetManager()
	websocketManager.Shutdown()

	// 设置关闭超时
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("服务关闭异常", zap.Error(err))
	}

	logger.Info("服务已关闭")
}

// 初始化路由
func initRouter() *gin.Engine {
	r := gin.New()

	// 使用中间件
	r.Use(gin.Recovery())
	r.Use(logger.GinLogger())

	// 初始化API路由
	router.Setup(r)

	return r
}
