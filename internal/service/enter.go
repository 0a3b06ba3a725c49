package service

import (
	"errors"
	"sync"

	"github.com/nsxzhou1114/campus-api/internal/store"
)

// 调用方误用类错误，直接向上层暴露，不重试
var (
	// ErrNotParticipant 发送者不是会话参与者
	ErrNotParticipant = errors.New("不是会话参与者")
	// ErrEmptyContent 消息内容为空
	ErrEmptyContent = errors.New("消息内容不能为空")
	// ErrSameParticipant 不允许与自己建立会话
	ErrSameParticipant = errors.New("不能与自己建立会话")
	// ErrInvalidSourceKind 未知的信息流来源类型
	ErrInvalidSourceKind = errors.New("未知的条目来源类型")
	// ErrNotAuthor 操作者不是公告作者
	ErrNotAuthor = errors.New("只有作者或管理员可以操作该公告")
	// ErrAudienceValueRequired 非公开受众缺少受众取值
	ErrAudienceValueRequired = errors.New("该受众类型需要指定受众取值")
)

var (
	recordStore store.Store
	setupOnce   sync.Once
)

// Setup 注入记录存储，供各服务单例使用
func Setup(st store.Store) {
	setupOnce.Do(func() {
		recordStore = st
	})
}

// GetStore 获取记录存储
func GetStore() store.Store {
	return recordStore
}
