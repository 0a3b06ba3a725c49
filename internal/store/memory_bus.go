package store

import (
	"context"
	"sync"
)

// memorySubscriber 单个订阅者
type memorySubscriber struct {
	ch     chan Event
	topics []string

	mutex  sync.Mutex
	closed bool
}

// trySend 投递一个事件，缓冲已满或已关闭返回false
func (s *memorySubscriber) trySend(ev Event) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// close 关闭订阅通道，可安全地重复调用
func (s *memorySubscriber) close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// MemoryBus 进程内事件总线
// 单实例部署与测试使用；订阅者缓冲积压说明消费方跟不上，
// 此时断开其通道，由上层走重连+快照追赶补齐，事件不在总线内排队
type MemoryBus struct {
	mutex       sync.RWMutex
	subscribers map[string][]*memorySubscriber
	buffer      int
}

// NewMemoryBus 创建进程内事件总线
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBus{
		subscribers: make(map[string][]*memorySubscriber),
		buffer:      buffer,
	}
}

// Publish 发布事件到指定主题
// 投递不进去的订阅者被摘除并关闭，迫使其重连追赶
func (b *MemoryBus) Publish(ctx context.Context, topic string, ev Event) error {
	b.mutex.RLock()
	subs := make([]*memorySubscriber, len(b.subscribers[topic]))
	copy(subs, b.subscribers[topic])
	b.mutex.RUnlock()

	for _, sub := range subs {
		if !sub.trySend(ev) {
			b.remove(sub)
		}
	}
	return nil
}

// Subscribe 订阅一组主题，ctx取消时通道关闭
func (b *MemoryBus) Subscribe(ctx context.Context, topics ...string) (<-chan Event, error) {
	sub := &memorySubscriber{
		ch:     make(chan Event, b.buffer),
		topics: topics,
	}

	b.mutex.Lock()
	for _, topic := range topics {
		b.subscribers[topic] = append(b.subscribers[topic], sub)
	}
	b.mutex.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(sub)
	}()

	return sub.ch, nil
}

// remove 摘除订阅者并关闭其通道
func (b *MemoryBus) remove(sub *memorySubscriber) {
	b.mutex.Lock()
	for _, topic := range sub.topics {
		subs := b.subscribers[topic]
		for i, s := range subs {
			if s == sub {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	b.mutex.Unlock()

	sub.close()
}
