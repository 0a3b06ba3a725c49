package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, "feed:user:1", TopicAnnouncements)
	if err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	if err := bus.Publish(ctx, "feed:user:1", NewEvent(KindNotification, OpInsert, 1, nil)); err != nil {
		t.Fatalf("发布失败: %v", err)
	}
	if err := bus.Publish(ctx, TopicAnnouncements, NewEvent(KindAnnouncement, OpInsert, 2, nil)); err != nil {
		t.Fatalf("发布失败: %v", err)
	}
	// 未订阅的主题收不到
	if err := bus.Publish(ctx, "feed:user:2", NewEvent(KindNotification, OpInsert, 3, nil)); err != nil {
		t.Fatalf("发布失败: %v", err)
	}

	var got []int64
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			got = append(got, ev.ID)
		case <-time.After(time.Second):
			t.Fatal("等待事件超时")
		}
	}
	if got[0] != 1 || got[1] != 2 {
		t.Fatalf("事件顺序错误: %v", got)
	}

	select {
	case ev := <-events:
		t.Fatalf("收到了未订阅主题的事件: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryBusSubscribeCancelClosesChannel(t *testing.T) {
	bus := NewMemoryBus(4)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := bus.Subscribe(ctx, "feed:user:1")
	if err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("取消后不应再有事件")
		}
	case <-time.After(time.Second):
		t.Fatal("取消后通道未关闭")
	}

	// 取消后的发布不会阻塞也不报错
	if err := bus.Publish(context.Background(), "feed:user:1", NewEvent(KindNotification, OpInsert, 1, nil)); err != nil {
		t.Fatalf("发布失败: %v", err)
	}
}

func TestMemoryBusOverflowClosesSubscriber(t *testing.T) {
	bus := NewMemoryBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow, err := bus.Subscribe(ctx, "feed:user:1")
	if err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	healthy, err := bus.Subscribe(ctx, "feed:user:1")
	if err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	// slow不消费，healthy及时消费
	if err := bus.Publish(ctx, "feed:user:1", NewEvent(KindNotification, OpInsert, 1, nil)); err != nil {
		t.Fatalf("发布失败: %v", err)
	}
	if ev := <-healthy; ev.ID != 1 {
		t.Fatalf("事件顺序错误: %+v", ev)
	}

	// 第二个事件塞不进slow的缓冲，其通道被断开，
	// 上层据此走重连+快照追赶；发布方不阻塞
	if err := bus.Publish(ctx, "feed:user:1", NewEvent(KindNotification, OpInsert, 2, nil)); err != nil {
		t.Fatalf("发布失败: %v", err)
	}
	if ev := <-healthy; ev.ID != 2 {
		t.Fatalf("事件顺序错误: %+v", ev)
	}
	if err := bus.Publish(ctx, "feed:user:1", NewEvent(KindNotification, OpInsert, 3, nil)); err != nil {
		t.Fatalf("发布失败: %v", err)
	}

	// slow先读到积压的事件，然后看到通道关闭
	select {
	case ev := <-slow:
		if ev.ID != 1 {
			t.Fatalf("期望积压的最早事件, 实际: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("等待事件超时")
	}
	select {
	case ev, ok := <-slow:
		if ok {
			t.Fatalf("超限订阅者应被断开, 收到: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("超限订阅者的通道未关闭")
	}

	// 未超限的订阅者不受影响
	select {
	case ev := <-healthy:
		if ev.ID != 3 {
			t.Fatalf("期望事件3, 实际: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("等待事件超时")
	}
}
