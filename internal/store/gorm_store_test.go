package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nsxzhou1114/campus-api/internal/model"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 打开内存sqlite库并建表
// 限制单连接，保证所有会话看到同一个内存库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := model.InitTables(db); err != nil {
		t.Fatalf("初始化测试表失败: %v", err)
	}
	return db
}

func newTestStore(t *testing.T) (*GormStore, *MemoryBus) {
	t.Helper()
	bus := NewMemoryBus(16)
	return NewGormStore(newTestDB(t), bus, zap.NewNop().Sugar()), bus
}

func createTestUser(t *testing.T, st *GormStore, username, role, unit string) *model.User {
	t.Helper()
	user := &model.User{
		Username: username,
		Password: "x",
		Email:    username + "@campus.edu",
		Name:     username,
		Role:     role,
		OrgUnit:  unit,
		Status:   1,
	}
	if err := st.db.Create(user).Error; err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}
	return user
}

func TestGetUserNotFound(t *testing.T) {
	st, _ := newTestStore(t)

	_, err := st.GetUser(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("期望ErrNotFound, 实际: %v", err)
	}
}

func TestSetNotificationReadIdempotent(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, st, "stu1", model.RoleStudent, "cs")

	n := &model.Notification{
		RecipientID: user.ID,
		Title:       "作业截止提醒",
		Content:     "第三次作业周五截止",
		Category:    "assignment",
		Priority:    model.PriorityHigh,
	}
	if err := st.CreateNotification(ctx, n); err != nil {
		t.Fatalf("创建通知失败: %v", err)
	}

	marked, err := st.SetNotificationRead(ctx, n.ID, user.ID)
	if err != nil || !marked {
		t.Fatalf("首次标记已读: marked=%v err=%v", marked, err)
	}

	// 重复标记不报错
	marked, err = st.SetNotificationRead(ctx, n.ID, user.ID)
	if err != nil || !marked {
		t.Fatalf("重复标记已读: marked=%v err=%v", marked, err)
	}

	// 不存在的通知降级为false
	marked, err = st.SetNotificationRead(ctx, 9999, user.ID)
	if err != nil || marked {
		t.Fatalf("不存在的通知: marked=%v err=%v", marked, err)
	}

	// 不属于该用户的通知同样视作不存在
	other := createTestUser(t, st, "stu2", model.RoleStudent, "cs")
	marked, err = st.SetNotificationRead(ctx, n.ID, other.ID)
	if err != nil || marked {
		t.Fatalf("他人的通知: marked=%v err=%v", marked, err)
	}
}

func TestMarkAnnouncementReadIdempotent(t *testing.T) {
	st, bus := newTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, st, "lect1", model.RoleLecturer, "cs")
	reader := createTestUser(t, st, "stu1", model.RoleStudent, "cs")

	a := &model.Announcement{
		AuthorID:     author.ID,
		Title:        "期末安排",
		Content:      "考试时间已公布",
		Priority:     model.PriorityMedium,
		AudienceKind: model.AudiencePublic,
	}
	if err := st.CreateAnnouncement(ctx, a); err != nil {
		t.Fatalf("创建公告失败: %v", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := bus.Subscribe(subCtx, TopicFeedUser(reader.ID))
	if err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	marked, err := st.MarkAnnouncementRead(ctx, reader.ID, a.ID)
	if err != nil || !marked {
		t.Fatalf("首次标记已读: marked=%v err=%v", marked, err)
	}
	marked, err = st.MarkAnnouncementRead(ctx, reader.ID, a.ID)
	if err != nil || !marked {
		t.Fatalf("重复标记已读: marked=%v err=%v", marked, err)
	}

	// 不存在的公告降级为false
	marked, err = st.MarkAnnouncementRead(ctx, reader.ID, 9999)
	if err != nil || marked {
		t.Fatalf("不存在的公告: marked=%v err=%v", marked, err)
	}

	// 已读记录落库且只有一条
	readIDs, err := st.ListAnnouncementReadIDs(ctx, reader.ID)
	if err != nil {
		t.Fatalf("查询已读记录失败: %v", err)
	}
	if !readIDs[a.ID] || len(readIDs) != 1 {
		t.Fatalf("已读记录异常: %v", readIDs)
	}

	// 只有首次标记发布事件
	select {
	case ev := <-events:
		if ev.Kind != KindAnnouncement || ev.Op != OpUpdate {
			t.Fatalf("事件类型错误: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("未收到已读事件")
	}
	select {
	case ev := <-events:
		t.Fatalf("重复标记不应再发事件: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConversationPairUnique(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	first := &model.Conversation{ParticipantLow: 1, ParticipantHigh: 2, LastMessageAt: time.Now()}
	if err := st.CreateConversation(ctx, first); err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	second := &model.Conversation{ParticipantLow: 1, ParticipantHigh: 2, LastMessageAt: time.Now()}
	err := st.CreateConversation(ctx, second)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("期望ErrDuplicate, 实际: %v", err)
	}

	found, err := st.FindConversationByPair(ctx, 1, 2)
	if err != nil {
		t.Fatalf("查找会话失败: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("期望查到首条会话%d, 实际%d", first.ID, found.ID)
	}
}

func TestListMessagesOrder(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	conv := &model.Conversation{ParticipantLow: 1, ParticipantHigh: 2, LastMessageAt: time.Now()}
	if err := st.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	// 同一时间戳的消息按ID决胜
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, m := range []*model.Message{
		{ID: 30, ConversationID: conv.ID, SenderID: 1, Content: "c", CreatedAt: at.Add(time.Second)},
		{ID: 20, ConversationID: conv.ID, SenderID: 2, Content: "b", CreatedAt: at},
		{ID: 10, ConversationID: conv.ID, SenderID: 1, Content: "a", CreatedAt: at},
	} {
		if err := st.CreateMessage(ctx, m); err != nil {
			t.Fatalf("创建消息失败: %v", err)
		}
	}

	messages, err := st.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("查询消息失败: %v", err)
	}
	var got []int64
	for _, m := range messages {
		got = append(got, m.ID)
	}
	want := []int64{10, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("消息顺序错误: got=%v want=%v", got, want)
		}
	}
}

func TestMarkConversationMessagesRead(t *testing.T) {
	st, bus := newTestStore(t)
	ctx := context.Background()

	conv := &model.Conversation{ParticipantLow: 1, ParticipantHigh: 2, LastMessageAt: time.Now()}
	if err := st.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	now := time.Now()
	for _, m := range []*model.Message{
		{ID: 1, ConversationID: conv.ID, SenderID: 2, Content: "hi", CreatedAt: now},
		{ID: 2, ConversationID: conv.ID, SenderID: 2, Content: "in", CreatedAt: now.Add(time.Second)},
		{ID: 3, ConversationID: conv.ID, SenderID: 1, Content: "yo", CreatedAt: now.Add(2 * time.Second)},
	} {
		if err := st.CreateMessage(ctx, m); err != nil {
			t.Fatalf("创建消息失败: %v", err)
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := bus.Subscribe(subCtx, TopicConversation(conv.ID))
	if err != nil {
		t.Fatalf("订阅失败: %v", err)
	}

	// 用户1只读对方(用户2)发的两条
	count, err := st.MarkConversationMessagesRead(ctx, conv.ID, 1)
	if err != nil || count != 2 {
		t.Fatalf("标记已读: count=%d err=%v", count, err)
	}

	// 幂等：重复调用没有可改写的行
	count, err = st.MarkConversationMessagesRead(ctx, conv.ID, 1)
	if err != nil || count != 0 {
		t.Fatalf("重复标记: count=%d err=%v", count, err)
	}

	// 已读回执事件
	select {
	case ev := <-events:
		if ev.Op != OpUpdate {
			t.Fatalf("事件类型错误: %+v", ev)
		}
		var mark ReadMark
		if err := ev.Decode(&mark); err != nil {
			t.Fatalf("解码回执失败: %v", err)
		}
		if mark.ReaderID != 1 || mark.Count != 2 {
			t.Fatalf("回执内容错误: %+v", mark)
		}
	case <-time.After(time.Second):
		t.Fatal("未收到已读回执")
	}

	unread, err := st.CountUnreadMessages(ctx, conv.ID, 1)
	if err != nil || unread != 0 {
		t.Fatalf("未读统计: unread=%d err=%v", unread, err)
	}
	// 用户2仍有一条未读（用户1发的）
	unread, err = st.CountUnreadMessages(ctx, conv.ID, 2)
	if err != nil || unread != 1 {
		t.Fatalf("对方未读统计: unread=%d err=%v", unread, err)
	}
}

func TestDeleteReadNotificationsBefore(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, st, "stu1", model.RoleStudent, "cs")

	read := &model.Notification{RecipientID: user.ID, Title: "旧通知", Content: "x", Priority: model.PriorityLow}
	unread := &model.Notification{RecipientID: user.ID, Title: "新通知", Content: "y", Priority: model.PriorityLow}
	if err := st.CreateNotification(ctx, read); err != nil {
		t.Fatalf("创建通知失败: %v", err)
	}
	if err := st.CreateNotification(ctx, unread); err != nil {
		t.Fatalf("创建通知失败: %v", err)
	}
	if _, err := st.SetNotificationRead(ctx, read.ID, user.ID); err != nil {
		t.Fatalf("标记已读失败: %v", err)
	}

	deleted, err := st.DeleteReadNotificationsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil || deleted != 1 {
		t.Fatalf("清理已读通知: deleted=%d err=%v", deleted, err)
	}

	// 未读通知不受影响
	remaining, err := st.ListNotifications(ctx, NotificationFilter{RecipientID: user.ID})
	if err != nil || len(remaining) != 1 || remaining[0].ID != unread.ID {
		t.Fatalf("剩余通知异常: %v err=%v", remaining, err)
	}
}

func TestDeleteAnnouncementsExpiredBefore(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	author := createTestUser(t, st, "lect1", model.RoleLecturer, "cs")
	reader := createTestUser(t, st, "stu1", model.RoleStudent, "cs")

	longGone := time.Now().Add(-48 * time.Hour)
	expired := &model.Announcement{
		AuthorID: author.ID, Title: "旧公告", Content: "x",
		Priority: model.PriorityLow, AudienceKind: model.AudiencePublic, ExpiresAt: &longGone,
	}
	active := &model.Announcement{
		AuthorID: author.ID, Title: "现行公告", Content: "y",
		Priority: model.PriorityLow, AudienceKind: model.AudiencePublic,
	}
	if err := st.CreateAnnouncement(ctx, expired); err != nil {
		t.Fatalf("创建公告失败: %v", err)
	}
	if err := st.CreateAnnouncement(ctx, active); err != nil {
		t.Fatalf("创建公告失败: %v", err)
	}
	if _, err := st.MarkAnnouncementRead(ctx, reader.ID, expired.ID); err != nil {
		t.Fatalf("标记已读失败: %v", err)
	}

	deleted, err := st.DeleteAnnouncementsExpiredBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || deleted != 1 {
		t.Fatalf("清理过期公告: deleted=%d err=%v", deleted, err)
	}

	// 已读记录一并清掉
	readIDs, err := st.ListAnnouncementReadIDs(ctx, reader.ID)
	if err != nil || len(readIDs) != 0 {
		t.Fatalf("已读记录未清理: %v err=%v", readIDs, err)
	}

	// 永不过期的公告保留
	remaining, err := st.ListAnnouncements(ctx, AnnouncementFilter{})
	if err != nil || len(remaining) != 1 || remaining[0].ID != active.ID {
		t.Fatalf("剩余公告异常: err=%v", err)
	}
}
