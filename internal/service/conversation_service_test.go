package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nsxzhou1114/campus-api/internal/model"
	"github.com/nsxzhou1114/campus-api/internal/store"
	"go.uber.org/zap"
)

func TestFindOrCreateSameParticipant(t *testing.T) {
	db, st, _ := newTestEnv(t)
	svc := NewConversationServiceWith(st, zap.NewNop().Sugar())

	user := seedUser(t, db, "stu1", model.RoleStudent, "cs")

	if _, err := svc.FindOrCreate(context.Background(), user.ID, user.ID, ""); !errors.Is(err, ErrSameParticipant) {
		t.Fatalf("期望ErrSameParticipant, 实际: %v", err)
	}
}

func TestFindOrCreateMissingPeer(t *testing.T) {
	db, st, _ := newTestEnv(t)
	svc := NewConversationServiceWith(st, zap.NewNop().Sugar())

	user := seedUser(t, db, "stu1", model.RoleStudent, "cs")

	if _, err := svc.FindOrCreate(context.Background(), user.ID, 9999, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("期望ErrNotFound, 实际: %v", err)
	}
}

func TestFindOrCreateReturnsSameConversation(t *testing.T) {
	db, st, _ := newTestEnv(t)
	svc := NewConversationServiceWith(st, zap.NewNop().Sugar())
	ctx := context.Background()

	alice := seedUser(t, db, "alice", model.RoleStudent, "cs")
	bob := seedUser(t, db, "bob", model.RoleLecturer, "cs")

	first, err := svc.FindOrCreate(ctx, alice.ID, bob.ID, "课程答疑")
	if err != nil {
		t.Fatalf("首次打开会话失败: %v", err)
	}

	// 参与者顺序无关
	second, err := svc.FindOrCreate(ctx, bob.ID, alice.ID, "")
	if err != nil {
		t.Fatalf("再次打开会话失败: %v", err)
	}
	if first != second {
		t.Fatalf("同一对用户解析出不同会话: %d vs %d", first, second)
	}
}

// 双方同时发起首条私信时收敛到同一个会话
func TestFindOrCreateConcurrentConvergence(t *testing.T) {
	db, st, _ := newTestEnv(t)
	svc := NewConversationServiceWith(st, zap.NewNop().Sugar())
	ctx := context.Background()

	alice := seedUser(t, db, "alice", model.RoleStudent, "cs")
	bob := seedUser(t, db, "bob", model.RoleLecturer, "cs")

	const workers = 8
	ids := make([]uint, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			ids[i], errs[i] = svc.FindOrCreate(ctx, a, b, "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("并发打开会话失败[%d]: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("并发打开会话未收敛: %v", ids)
		}
	}
}

func TestSendValidation(t *testing.T) {
	db, st, _ := newTestEnv(t)
	svc := NewConversationServiceWith(st, zap.NewNop().Sugar())
	ctx := context.Background()

	alice := seedUser(t, db, "alice", model.RoleStudent, "cs")
	bob := seedUser(t, db, "bob", model.RoleLecturer, "cs")
	outsider := seedUser(t, db, "eve", model.RoleStudent, "cs")

	convID, err := svc.FindOrCreate(ctx, alice.ID, bob.ID, "")
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}

	// 非参与者不能发消息
	if _, err := svc.Send(ctx, convID, outsider.ID, "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("期望ErrNotParticipant, 实际: %v", err)
	}

	// 空白内容被拒绝
	if _, err := svc.Send(ctx, convID, alice.ID, "   \n\t "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("期望ErrEmptyContent, 实际: %v", err)
	}

	// 正常发送，落库为未读
	msg, err := svc.Send(ctx, convID, alice.ID, "  请问作业答案什么时候公布  ")
	if err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	if msg.Content != "请问作业答案什么时候公布" {
		t.Fatalf("内容未去除首尾空白: %q", msg.Content)
	}
	if msg.IsRead {
		t.Fatal("新消息应为未读")
	}
	if msg.ID == 0 {
		t.Fatal("消息ID未生成")
	}
}

func TestMessagesTotalOrder(t *testing.T) {
	db, st, _ := newTestEnv(t)
	svc := NewConversationServiceWith(st, zap.NewNop().Sugar())
	ctx := context.Background()

	alice := seedUser(t, db, "alice", model.RoleStudent, "cs")
	bob := seedUser(t, db, "bob", model.RoleLecturer, "cs")

	convID, err := svc.FindOrCreate(ctx, alice.ID, bob.ID, "")
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}

	var sent []int64
	for _, content := range []string{"一", "二", "三"} {
		msg, err := svc.Send(ctx, convID, alice.ID, content)
		if err != nil {
			t.Fatalf("发送失败: %v", err)
		}
		sent = append(sent, msg.ID)
	}

	messages, err := svc.GetMessagesFor(ctx, convID, bob.ID)
	if err != nil {
		t.Fatalf("获取消息失败: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("期望3条消息, 实际%d", len(messages))
	}
	for i := range sent {
		if messages[i].ID != sent[i] {
			t.Fatalf("消息顺序与发送顺序不一致: %v", messages)
		}
	}

	// 非参与者不能读
	outsider := seedUser(t, db, "eve", model.RoleStudent, "cs")
	if _, err := svc.GetMessagesFor(ctx, convID, outsider.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("期望ErrNotParticipant, 实际: %v", err)
	}
}

func TestMarkMessagesReadIdempotent(t *testing.T) {
	db, st, _ := newTestEnv(t)
	svc := NewConversationServiceWith(st, zap.NewNop().Sugar())
	ctx := context.Background()

	alice := seedUser(t, db, "alice", model.RoleStudent, "cs")
	bob := seedUser(t, db, "bob", model.RoleLecturer, "cs")

	convID, err := svc.FindOrCreate(ctx, alice.ID, bob.ID, "")
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}
	if _, err := svc.Send(ctx, convID, alice.ID, "在吗"); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	if _, err := svc.Send(ctx, convID, alice.ID, "有个问题"); err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	count, err := svc.MarkMessagesRead(ctx, convID, bob.ID)
	if err != nil || count != 2 {
		t.Fatalf("标记已读: count=%d err=%v", count, err)
	}
	count, err = svc.MarkMessagesRead(ctx, convID, bob.ID)
	if err != nil || count != 0 {
		t.Fatalf("重复标记: count=%d err=%v", count, err)
	}

	// 非参与者不能标记
	outsider := seedUser(t, db, "eve", model.RoleStudent, "cs")
	if _, err := svc.MarkMessagesRead(ctx, convID, outsider.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("期望ErrNotParticipant, 实际: %v", err)
	}
}

func TestListConversations(t *testing.T) {
	db, st, _ := newTestEnv(t)
	svc := NewConversationServiceWith(st, zap.NewNop().Sugar())
	ctx := context.Background()

	alice := seedUser(t, db, "alice", model.RoleStudent, "cs")
	bob := seedUser(t, db, "bob", model.RoleLecturer, "cs")
	carol := seedUser(t, db, "carol", model.RoleLecturer, "math")

	withBob, err := svc.FindOrCreate(ctx, alice.ID, bob.ID, "")
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}
	withCarol, err := svc.FindOrCreate(ctx, alice.ID, carol.ID, "")
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}

	if _, err := svc.Send(ctx, withBob, bob.ID, "作业批好了"); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	if _, err := svc.Send(ctx, withCarol, carol.ID, "下周补课"); err != nil {
		t.Fatalf("发送失败: %v", err)
	}
	if _, err := svc.Send(ctx, withCarol, carol.ID, "记得带讲义"); err != nil {
		t.Fatalf("发送失败: %v", err)
	}

	items, err := svc.ListConversations(ctx, alice.ID)
	if err != nil {
		t.Fatalf("获取会话列表失败: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("期望2个会话, 实际%d", len(items))
	}

	// 最近有消息的会话排前面
	if items[0].ID != withCarol {
		t.Fatalf("会话排序错误: %+v", items)
	}
	if items[0].PeerName != "carol" || items[0].UnreadCount != 2 {
		t.Fatalf("会话条目错误: %+v", items[0])
	}
	if items[1].PeerName != "bob" || items[1].UnreadCount != 1 {
		t.Fatalf("会话条目错误: %+v", items[1])
	}
}
