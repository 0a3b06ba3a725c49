package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/nsxzhou1114/campus-api/internal/config"
	"github.com/nsxzhou1114/campus-api/internal/dto"
	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/internal/store"
	"go.uber.org/zap"
)

// SubscriptionState 订阅状态
type SubscriptionState int32

// 订阅状态机: Pending -> Active -> (Reconnecting -> Active)* -> Cancelled
const (
	StatePending SubscriptionState = iota
	StateActive
	StateReconnecting
	StateCancelled
)

// String 状态名
func (s SubscriptionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// snapshotKey 去重键 (source_kind, id)
type snapshotKey struct {
	kind string
	id   int64
}

// Subscription 订阅句柄
// 每个句柄由单独的投递协程串行回调；取消幂等且立即生效，
// 取消后在途事件被丢弃而不是排队
type Subscription struct {
	state      atomic.Int32
	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}

	mutex    sync.Mutex
	snapshot map[snapshotKey]dto.UnifiedFeedItem
}

func newSubscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{
		cancel:   cancel,
		done:     make(chan struct{}),
		snapshot: make(map[snapshotKey]dto.UnifiedFeedItem),
	}
}

// State 当前订阅状态
func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// setState 状态迁移，已取消的订阅不再改变状态
func (s *Subscription) setState(next SubscriptionState) {
	for {
		current := s.state.Load()
		if SubscriptionState(current) == StateCancelled {
			return
		}
		if s.state.CompareAndSwap(current, int32(next)) {
			return
		}
	}
}

// Cancel 取消订阅，可安全地重复调用
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.state.Store(int32(StateCancelled))
		s.cancel()
	})
}

// Done 投递协程退出后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// upsert 按去重键写入快照，已存在的条目就地替换
func (s *Subscription) upsert(item dto.UnifiedFeedItem) {
	s.mutex.Lock()
	s.snapshot[snapshotKey{kind: item.SourceKind, id: int64(item.ID)}] = item
	s.mutex.Unlock()
}

// remove 从快照摘除条目
func (s *Subscription) remove(key snapshotKey) {
	s.mutex.Lock()
	delete(s.snapshot, key)
	s.mutex.Unlock()
}

// resetSnapshot 清空快照（重连追赶前调用）
func (s *Subscription) resetSnapshot() {
	s.mutex.Lock()
	s.snapshot = make(map[snapshotKey]dto.UnifiedFeedItem)
	s.mutex.Unlock()
}

// Snapshot 当前快照的有序副本
func (s *Subscription) Snapshot() []dto.UnifiedFeedItem {
	s.mutex.Lock()
	items := make([]dto.UnifiedFeedItem, 0, len(s.snapshot))
	for _, item := range s.snapshot {
		items = append(items, item)
	}
	s.mutex.Unlock()

	sortFeedItems(items)
	return items
}

// FeedHandler 信息流条目回调
type FeedHandler func(item dto.UnifiedFeedItem)

// MessageEvent 会话事件，新消息或已读回执二选一
type MessageEvent struct {
	Message  *dto.MessageItem `json:"message,omitempty"`
	ReadMark *store.ReadMark  `json:"read_mark,omitempty"`
}

// MessageHandler 会话事件回调
type MessageHandler func(ev MessageEvent)

// DispatchOptions 分发配置
type DispatchOptions struct {
	ReconnectAttempts uint
	ReconnectDelay    time.Duration
}

// DefaultDispatchOptions 默认分发配置
func DefaultDispatchOptions() DispatchOptions {
	return DispatchOptions{
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
	}
}

var (
	dispatchService     *DispatchService
	dispatchServiceOnce sync.Once
)

// DispatchService 实时分发服务
// 订阅存储层变更事件，套用与全量查询一致的投影后串行投递给回调；
// 瞬态故障退避重连并全量追赶（断连期间丢失的事件不可单独恢复）
type DispatchService struct {
	store  store.Store
	feed   *FeedService
	conv   *ConversationService
	logger *zap.SugaredLogger
	opts   DispatchOptions
}

// NewDispatchService 创建实时分发服务单例
func NewDispatchService() *DispatchService {
	dispatchServiceOnce.Do(func() {
		opts := DefaultDispatchOptions()
		if cfg := config.GlobalConfig; cfg != nil {
			if cfg.Dispatch.ReconnectAttempts > 0 {
				opts.ReconnectAttempts = cfg.Dispatch.ReconnectAttempts
			}
			if cfg.Dispatch.ReconnectDelayMs > 0 {
				opts.ReconnectDelay = time.Duration(cfg.Dispatch.ReconnectDelayMs) * time.Millisecond
			}
		}
		dispatchService = &DispatchService{
			store:  GetStore(),
			feed:   NewFeedService(),
			conv:   NewConversationService(),
			logger: logger.GetSugaredLogger(),
			opts:   opts,
		}
	})
	return dispatchService
}

// NewDispatchServiceWith 以指定依赖创建实时分发服务（测试用）
func NewDispatchServiceWith(st store.Store, feed *FeedService, conv *ConversationService, lg *zap.SugaredLogger, opts DispatchOptions) *DispatchService {
	return &DispatchService{store: st, feed: feed, conv: conv, logger: lg, opts: opts}
}

// SubscribeToFeed 订阅用户信息流的实时更新
func (s *DispatchService) SubscribeToFeed(userID uint, onItem FeedHandler) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(cancel)
	go s.runFeed(ctx, sub, userID, onItem)
	return sub
}

// SubscribeToConversation 订阅单个会话的实时更新
func (s *DispatchService) SubscribeToConversation(conversationID uint, onMessage MessageHandler) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(cancel)
	go s.runConversation(ctx, sub, conversationID, onMessage)
	return sub
}

// feedConn 一次信息流订阅连接及受众匹配所需的用户属性
type feedConn struct {
	events  <-chan store.Event
	user    *model.User
	courses []string
}

// retryOptions 重连退避配置
func (s *DispatchService) retryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(s.opts.ReconnectAttempts),
		retry.Delay(s.opts.ReconnectDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
}

// runFeed 信息流订阅主循环
func (s *DispatchService) runFeed(ctx context.Context, sub *Subscription, userID uint, onItem FeedHandler) {
	defer close(sub.done)

	topics := []string{store.TopicFeedUser(userID), store.TopicAnnouncements}
	reconnected := false

	for {
		conn, err := s.connectFeed(ctx, userID, topics)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Errorf("信息流订阅重连失败: 用户%d: %v", userID, err)
			}
			sub.Cancel()
			return
		}

		sub.setState(StateActive)

		// 重连后事件无法逐条补发，全量追赶当前快照
		if reconnected {
			s.catchUpFeed(ctx, sub, userID, onItem)
		}
		reconnected = true

		if !s.consumeFeed(ctx, sub, conn, onItem) {
			return
		}
		sub.setState(StateReconnecting)
		s.logger.Warnf("信息流订阅连接断开，准备重连: 用户%d", userID)
	}
}

// connectFeed 建立订阅并加载受众匹配所需的用户属性，带退避重试
func (s *DispatchService) connectFeed(ctx context.Context, userID uint, topics []string) (*feedConn, error) {
	var conn *feedConn
	err := retry.Do(func() error {
		events, err := s.store.Bus().Subscribe(ctx, topics...)
		if err != nil {
			return err
		}
		user, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		courses, err := s.store.ListUserCourses(ctx, userID)
		if err != nil {
			return err
		}
		conn = &feedConn{events: events, user: user, courses: courses}
		return nil
	}, s.retryOptions(ctx)...)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// consumeFeed 消费事件直到连接断开
// 返回true表示需要重连，false表示订阅已取消
func (s *DispatchService) consumeFeed(ctx context.Context, sub *Subscription, conn *feedConn, onItem FeedHandler) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-conn.events:
			if !ok {
				return ctx.Err() == nil
			}
			if sub.State() == StateCancelled {
				// 已取消，丢弃在途事件
				return false
			}
			s.handleFeedEvent(sub, conn, ev, onItem)
		}
	}
}

// handleFeedEvent 投影并投递单个信息流事件
// 套用与全量查询相同的投影和受众判断，投递形态与重新拉取一致；
// 按(source_kind, id)去重，同键更新就地替换而不是追加
func (s *DispatchService) handleFeedEvent(sub *Subscription, conn *feedConn, ev store.Event, onItem FeedHandler) {
	switch ev.Kind {
	case store.KindNotification:
		var n model.Notification
		if err := ev.Decode(&n); err != nil {
			s.logger.Warnf("解析通知事件失败: %v", err)
			return
		}
		item := projectNotification(&n)
		sub.upsert(item)
		onItem(item)

	case store.KindAnnouncement:
		if ev.Op == store.OpDelete {
			sub.remove(snapshotKey{kind: store.KindAnnouncement, id: ev.ID})
			return
		}
		var a model.Announcement
		if err := ev.Decode(&a); err != nil {
			s.logger.Warnf("解析公告事件失败: %v", err)
			return
		}
		if a.Expired(time.Now()) || !a.MatchesAudience(conn.user, conn.courses) {
			return
		}
		// 用户主题上的公告update事件即该用户的已读回执
		item := projectAnnouncement(&a, ev.Op == store.OpUpdate)
		sub.upsert(item)
		onItem(item)
	}
}

// catchUpFeed 重连后的全量追赶
func (s *DispatchService) catchUpFeed(ctx context.Context, sub *Subscription, userID uint, onItem FeedHandler) {
	items, err := s.feed.GetUnifiedFeed(ctx, userID, nil)
	if err != nil {
		s.logger.Warnf("信息流追赶拉取失败: 用户%d: %v", userID, err)
		return
	}

	sub.resetSnapshot()
	for _, item := range items {
		if sub.State() == StateCancelled {
			return
		}
		sub.upsert(item)
		onItem(item)
	}
}

// runConversation 会话订阅主循环
func (s *DispatchService) runConversation(ctx context.Context, sub *Subscription, conversationID uint, onMessage MessageHandler) {
	defer close(sub.done)

	topics := []string{store.TopicConversation(conversationID)}
	reconnected := false

	for {
		var events <-chan store.Event
		err := retry.Do(func() error {
			ch, err := s.store.Bus().Subscribe(ctx, topics...)
			if err != nil {
				return err
			}
			events = ch
			return nil
		}, s.retryOptions(ctx)...)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Errorf("会话订阅重连失败: 会话%d: %v", conversationID, err)
			}
			sub.Cancel()
			return
		}

		sub.setState(StateActive)

		if reconnected {
			s.catchUpConversation(ctx, sub, conversationID, onMessage)
		}
		reconnected = true

		if !s.consumeConversation(ctx, sub, events, onMessage) {
			return
		}
		sub.setState(StateReconnecting)
		s.logger.Warnf("会话订阅连接断开，准备重连: 会话%d", conversationID)
	}
}

// consumeConversation 消费会话事件直到连接断开
func (s *DispatchService) consumeConversation(ctx context.Context, sub *Subscription, events <-chan store.Event, onMessage MessageHandler) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() == nil
			}
			if sub.State() == StateCancelled {
				return false
			}
			s.handleConversationEvent(ev, onMessage)
		}
	}
}

// handleConversationEvent 投影并投递单个会话事件
func (s *DispatchService) handleConversationEvent(ev store.Event, onMessage MessageHandler) {
	if ev.Kind != store.KindMessage {
		return
	}

	switch ev.Op {
	case store.OpInsert:
		var m model.Message
		if err := ev.Decode(&m); err != nil {
			s.logger.Warnf("解析消息事件失败: %v", err)
			return
		}
		item := projectMessage(&m)
		onMessage(MessageEvent{Message: &item})
	case store.OpUpdate:
		var mark store.ReadMark
		if err := ev.Decode(&mark); err != nil {
			s.logger.Warnf("解析已读回执失败: %v", err)
			return
		}
		onMessage(MessageEvent{ReadMark: &mark})
	}
}

// catchUpConversation 重连后重放会话消息，消费方按ID对账去重
func (s *DispatchService) catchUpConversation(ctx context.Context, sub *Subscription, conversationID uint, onMessage MessageHandler) {
	items, err := s.conv.GetMessages(ctx, conversationID)
	if err != nil {
		s.logger.Warnf("会话追赶拉取失败: 会话%d: %v", conversationID, err)
		return
	}

	for i := range items {
		if sub.State() == StateCancelled {
			return
		}
		onMessage(MessageEvent{Message: &items[i]})
	}
}
