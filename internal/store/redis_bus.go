package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/redis/go-redis/v9"
)

// RedisBus 基于redis pub/sub的事件总线
// 多实例部署时让变更事件跨进程到达所有订阅者
type RedisBus struct {
	client *redis.Client
	buffer int
}

// NewRedisBus 创建redis事件总线
func NewRedisBus(client *redis.Client, buffer int) *RedisBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &RedisBus{client: client, buffer: buffer}
}

// Publish 发布事件到指定主题
func (b *RedisBus) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %v", err)
	}
	if err := b.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("发布事件失败: %v: %w", err, ErrStoreUnavailable)
	}
	return nil
}

// Subscribe 订阅一组主题
// redis连接断开时go-redis内部先自行重连；订阅通道只在ctx取消
// 或连接彻底不可恢复时关闭，由上层走重连+快照追赶
func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (<-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, topics...)

	// 确认订阅建立
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("建立订阅失败: %v: %w", err, ErrStoreUnavailable)
	}

	out := make(chan Event, b.buffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warnf("解析事件失败: %v", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
