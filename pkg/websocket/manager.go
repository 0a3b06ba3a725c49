package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/service"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Manager WebSocket连接管理器
// 同一用户允许多个并发会话（多标签页、多设备），按连接ID区分
type Manager struct {
	clients    map[uint]map[string]*Client
	dispatch   *service.DispatchService
	offline    OfflineFeedStore
	register   chan *Client
	unregister chan *Client
	logger     *zap.SugaredLogger
	ctx        context.Context
	cancel     context.CancelFunc
	mutex      sync.RWMutex
}

var (
	manager     *Manager
	managerOnce sync.Once
)

// GetManager 获取WebSocket管理器单例
func GetManager() *Manager {
	managerOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		manager = &Manager{
			clients:    make(map[uint]map[string]*Client),
			register:   make(chan *Client, 32),
			unregister: make(chan *Client, 32),
			logger:     logger.GetSugaredLogger(),
			ctx:        ctx,
			cancel:     cancel,
		}
	})
	return manager
}

// Initialize 初始化管理器并启动主循环
func (m *Manager) Initialize(dispatch *service.DispatchService, offline OfflineFeedStore) {
	m.dispatch = dispatch
	m.offline = offline
	go m.run()
}

// Shutdown 关闭管理器
func (m *Manager) Shutdown() {
	m.logger.Info("正在关闭WebSocket管理器...")
	m.cancel()

	m.mutex.Lock()
	for _, sessions := range m.clients {
		for _, client := range sessions {
			client.Close()
		}
	}
	m.clients = make(map[uint]map[string]*Client)
	m.mutex.Unlock()

	m.logger.Info("WebSocket管理器已关闭")
}

// run 运行管理器主循环
func (m *Manager) run() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case client := <-m.register:
			m.handleRegister(client)
		case client := <-m.unregister:
			m.handleUnregister(client)
		case <-ticker.C:
			m.cleanInactiveConnections()
		}
	}
}

// handleRegister 处理客户端注册
func (m *Manager) handleRegister(client *Client) {
	m.mutex.Lock()
	sessions, exists := m.clients[client.UserID]
	if !exists {
		sessions = make(map[string]*Client)
		m.clients[client.UserID] = sessions
	}
	sessions[client.ID] = client
	m.logger.Infof("用户%d已连接(会话%s)，该用户在线会话数: %d", client.UserID, client.ID, len(sessions))
	m.mutex.Unlock()

	// 先补发离线缓冲，再开启实时订阅
	go func() {
		m.flushOfflineItems(client)
		client.startFeedSubscription()
	}()
}

// handleUnregister 处理客户端注销
func (m *Manager) handleUnregister(client *Client) {
	client.Close()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	sessions, exists := m.clients[client.UserID]
	if !exists {
		return
	}
	if _, ok := sessions[client.ID]; ok {
		delete(sessions, client.ID)
		if len(sessions) == 0 {
			delete(m.clients, client.UserID)
		}
		m.logger.Infof("用户%d已断开(会话%s)", client.UserID, client.ID)
	}
}

// flushOfflineItems 补发离线缓冲中的条目
func (m *Manager) flushOfflineItems(client *Client) {
	if m.offline == nil {
		return
	}

	items, err := m.offline.GetOfflineItems(m.ctx, client.UserID)
	if err != nil {
		m.logger.Errorf("获取离线条目失败: 用户%d: %v", client.UserID, err)
		return
	}
	if len(items) == 0 {
		return
	}

	for _, item := range items {
		frame := NewFeedFrame(item)
		data, err := frame.ToJSON()
		if err != nil {
			continue
		}
		if !client.trySend(data) {
			// 投递失败，保留缓冲下次再试
			return
		}
	}

	if err := m.offline.ClearOfflineItems(m.ctx, client.UserID); err != nil {
		m.logger.Warnf("清空离线缓冲失败: 用户%d: %v", client.UserID, err)
	}
}

// cleanInactiveConnections 清理不活跃的连接
func (m *Manager) cleanInactiveConnections() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	timeout := 5 * time.Minute
	for userID, sessions := range m.clients {
		for id, client := range sessions {
			if !client.IsActive(timeout) {
				client.Close()
				delete(sessions, id)
				m.logger.Infof("清理不活跃连接: 用户%d 会话%s", userID, id)
			}
		}
		if len(sessions) == 0 {
			delete(m.clients, userID)
		}
	}
}

// HandleWebSocket 处理WebSocket连接升级
func (m *Manager) HandleWebSocket(c *gin.Context, userID uint) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.logger.Errorf("WebSocket升级失败: %v", err)
		return
	}

	client := NewClient(userID, conn, m)
	m.register <- client

	go client.readPump()
	go client.writePump()
}

// IsUserOnline 检查用户是否有在线会话
func (m *Manager) IsUserOnline(userID uint) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, client := range m.clients[userID] {
		if client.IsActive(5 * time.Minute) {
			return true
		}
	}
	return false
}

// OnlineUsers 获取有在线会话的用户列表
func (m *Manager) OnlineUsers() []uint {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	users := make([]uint, 0, len(m.clients))
	for userID := range m.clients {
		users = append(users, userID)
	}
	return users
}
