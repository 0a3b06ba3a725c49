package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nsxzhou1114/campus-api/internal/dto"
	"github.com/nsxzhou1114/campus-api/internal/service"
)

// Client 表示一个WebSocket客户端连接（同一用户可以有多个会话）
type Client struct {
	ID         string
	UserID     uint
	Conn       *websocket.Conn
	Send       chan []byte
	manager    *Manager
	lastActive time.Time
	closed     bool
	closeMutex sync.RWMutex

	// 连接持有的订阅，连接关闭时全部取消
	feedSub  *service.Subscription
	convSubs map[uint]*service.Subscription
	subMutex sync.Mutex
}

// NewClient 创建新的客户端实例
func NewClient(userID uint, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:         generateConnID(userID),
		UserID:     userID,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		manager:    manager,
		lastActive: time.Now(),
		convSubs:   make(map[uint]*service.Subscription),
	}
}

// startFeedSubscription 启动信息流订阅，推送帧投递不出去时转入离线缓冲
func (c *Client) startFeedSubscription() {
	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	if c.feedSub != nil {
		return
	}
	c.feedSub = c.manager.dispatch.SubscribeToFeed(c.UserID, func(item dto.UnifiedFeedItem) {
		c.pushFeedItem(item)
	})
}

// pushFeedItem 推送单条信息流条目
func (c *Client) pushFeedItem(item dto.UnifiedFeedItem) {
	frame := NewFeedFrame(item)
	data, err := frame.ToJSON()
	if err != nil {
		return
	}
	if !c.trySend(data) {
		// 连接已满或已关闭，落离线缓冲
		if c.manager.offline != nil {
			_ = c.manager.offline.StoreOfflineItem(context.Background(), c.UserID, item)
		}
	}
}

// watchConversation 绑定一个会话的实时订阅
func (c *Client) watchConversation(conversationID uint) {
	// 只有参与者可以订阅会话
	conversation, err := service.GetStore().GetConversation(context.Background(), conversationID)
	if err != nil || !conversation.HasParticipant(c.UserID) {
		c.sendError(fmt.Sprintf("无法订阅会话%d", conversationID))
		return
	}

	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	if _, exists := c.convSubs[conversationID]; exists {
		return
	}
	c.convSubs[conversationID] = c.manager.dispatch.SubscribeToConversation(conversationID, func(ev service.MessageEvent) {
		frame := NewConversationFrame(conversationID, ev)
		if data, err := frame.ToJSON(); err == nil {
			c.trySend(data)
		}
	})
}

// unwatchConversation 取消一个会话的订阅
func (c *Client) unwatchConversation(conversationID uint) {
	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	if sub, exists := c.convSubs[conversationID]; exists {
		sub.Cancel()
		delete(c.convSubs, conversationID)
	}
}

// cancelSubscriptions 取消连接持有的全部订阅
func (c *Client) cancelSubscriptions() {
	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	if c.feedSub != nil {
		c.feedSub.Cancel()
		c.feedSub = nil
	}
	for id, sub := range c.convSubs {
		sub.Cancel()
		delete(c.convSubs, id)
	}
}

// trySend 尝试投递一帧，连接已关闭或缓冲已满返回false
func (c *Client) trySend(data []byte) bool {
	c.closeMutex.RLock()
	defer c.closeMutex.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// readPump 处理从客户端读取消息
func (c *Client) readPump() {
	defer func() {
		c.manager.unregister <- c
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.updateActivity()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		c.updateActivity()
		if len(message) > 0 {
			c.handleMessage(message)
		}
	}
}

// writePump 处理向客户端发送消息
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				return
			}
			if err := c.writeMessage(message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的控制帧
func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type           string `json:"type"`
		ConversationID uint   `json:"conversation_id"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		c.handlePing()
	case "watch_conversation":
		if msg.ConversationID > 0 {
			c.watchConversation(msg.ConversationID)
		}
	case "unwatch_conversation":
		if msg.ConversationID > 0 {
			c.unwatchConversation(msg.ConversationID)
		}
	}
}

// handlePing 处理ping消息
func (c *Client) handlePing() {
	response := struct {
		Type      string `json:"type"`
		Timestamp int64  `json:"timestamp"`
	}{
		Type:      "pong",
		Timestamp: time.Now().Unix(),
	}

	if data, err := json.Marshal(response); err == nil {
		c.trySend(data)
	}
}

// sendError 推送错误提示帧
func (c *Client) sendError(message string) {
	response := struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{
		Type:    "error",
		Message: message,
	}
	if data, err := json.Marshal(response); err == nil {
		c.trySend(data)
	}
}

// writeMessage 发送消息到客户端
func (c *Client) writeMessage(message []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.Conn.WriteMessage(websocket.TextMessage, message)
}

// Close 关闭客户端连接并取消其全部订阅
func (c *Client) Close() {
	c.closeMutex.Lock()
	if !c.closed {
		c.closed = true
		close(c.Send)
		c.Conn.Close()
	}
	c.closeMutex.Unlock()

	c.cancelSubscriptions()
}

// updateActivity 更新最后活跃时间
func (c *Client) updateActivity() {
	c.closeMutex.Lock()
	c.lastActive = time.Now()
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.closeMutex.Unlock()
}

// IsActive 检查客户端是否活跃
func (c *Client) IsActive(timeout time.Duration) bool {
	c.closeMutex.RLock()
	defer c.closeMutex.RUnlock()
	return !c.closed && time.Since(c.lastActive) < timeout
}

// generateConnID 生成连接ID
func generateConnID(userID uint) string {
	return fmt.Sprintf("%d_%d", userID, time.Now().UnixNano())
}
