package router

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/nsxzhou1114/campus-api/internal/controller"
	"github.com/nsxzhou1114/campus-api/internal/middleware"
	"github.com/nsxzhou1114/campus-api/internal/model"
)

// Setup 设置API路由
func Setup(r *gin.Engine) {
	registerValidators()

	// API 路由组
	api := r.Group("/api")

	// 令牌相关路由
	setupAuthRoutes(api)

	// 信息流相关路由
	setupFeedRoutes(api)

	// 会话相关路由
	setupConversationRoutes(api)

	// 公告相关路由
	setupAnnouncementRoutes(api)

	// WebSocket接入
	setupWebSocketRoutes(api)
}

// registerValidators 注册自定义校验规则
func registerValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return model.ValidPriority(fl.Field().String())
	})
	v.RegisterValidation("audience", func(fl validator.FieldLevel) bool {
		return model.ValidAudienceKind(fl.Field().String())
	})
}

// setupAuthRoutes 设置令牌相关路由
func setupAuthRoutes(api *gin.RouterGroup) {
	authApi := controller.NewAuthApi()

	authRoutes := api.Group("/auth")
	{
		// 刷新令牌对
		authRoutes.POST("/refresh", middleware.RefreshAuth(), authApi.Refresh)
		// 登出（撤销当前访问令牌）
		authRoutes.POST("/logout", middleware.JWTAuth(), authApi.Logout)
	}
}

// setupFeedRoutes 设置信息流相关路由
func setupFeedRoutes(api *gin.RouterGroup) {
	feedApi := controller.NewFeedApi()

	feedRoutes := api.Group("/feed", middleware.JWTAuth())
	{
		// 获取统一信息流
		feedRoutes.GET("", feedApi.List)
		// 未读数量
		feedRoutes.GET("/unread-count", feedApi.UnreadCount)
		// 标记单条已读
		feedRoutes.PUT("/:kind/:id/read", feedApi.MarkRead)
		// 全部标记已读
		feedRoutes.PUT("/read-all", feedApi.MarkAllRead)
	}
}

// setupConversationRoutes 设置会话相关路由
func setupConversationRoutes(api *gin.RouterGroup) {
	conversationApi := controller.NewConversationApi()

	conversationRoutes := api.Group("/conversations", middleware.JWTAuth())
	{
		// 打开（或创建）与指定用户的会话
		conversationRoutes.POST("", conversationApi.Open)
		// 会话列表
		conversationRoutes.GET("", conversationApi.List)
		// 会话消息
		conversationRoutes.GET("/:id/messages", conversationApi.GetMessages)
		// 发送消息
		conversationRoutes.POST("/:id/messages", conversationApi.SendMessage)
		// 标记会话已读
		conversationRoutes.PUT("/:id/read", conversationApi.MarkRead)
	}
}

// setupAnnouncementRoutes 设置公告相关路由
func setupAnnouncementRoutes(api *gin.RouterGroup) {
	announcementApi := controller.NewAnnouncementApi()

	// 发布和撤下仅限教职工
	staffRoutes := api.Group("/announcements", middleware.StaffAuth())
	{
		// 发布公告
		staffRoutes.POST("", announcementApi.Create)
		// 我发布的公告
		staffRoutes.GET("/mine", announcementApi.ListMine)
		// 撤下公告（作者或管理员）
		staffRoutes.DELETE("/:id", announcementApi.Delete)
	}
}

// setupWebSocketRoutes 设置WebSocket接入路由
func setupWebSocketRoutes(api *gin.RouterGroup) {
	websocketApi := controller.NewWebSocketApi()

	// 认证走查询参数token
	api.GET("/ws", websocketApi.HandleWebSocket)

	// 在线状态查询仅限管理员
	adminRoutes := api.Group("/admin", middleware.AdminAuth())
	{
		adminRoutes.GET("/online-users", websocketApi.OnlineUsers)
	}
}
