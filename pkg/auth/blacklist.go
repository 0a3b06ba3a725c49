package auth

import (
	"sync"
	"time"
)

// Blacklist 令牌黑名单接口
type Blacklist interface {
	// AddToBlacklist 将令牌添加到黑名单
	AddToBlacklist(token string, expireAt time.Time) error
	// IsBlacklisted 检查令牌是否在黑名单中
	IsBlacklisted(token string) bool
}

var (
	activeBlacklist Blacklist
	activeMutex     sync.RWMutex
)

// UseBlacklist 设置进程使用的黑名单实现，服务启动时调用一次
func UseBlacklist(b Blacklist) {
	activeMutex.Lock()
	defer activeMutex.Unlock()
	activeBlacklist = b
}

// GetTokenBlacklist 获取当前黑名单实现，未设置时回落到内存实现
func GetTokenBlacklist() Blacklist {
	activeMutex.RLock()
	b := activeBlacklist
	activeMutex.RUnlock()
	if b != nil {
		return b
	}
	return getMemoryBlacklist()
}

// MemoryTokenBlacklist 内存令牌黑名单，单实例部署和测试用
type MemoryTokenBlacklist struct {
	tokens map[string]time.Time
	mutex  sync.RWMutex
}

var (
	memoryBlacklist     *MemoryTokenBlacklist
	memoryBlacklistOnce sync.Once
)

func getMemoryBlacklist() *MemoryTokenBlacklist {
	memoryBlacklistOnce.Do(func() {
		memoryBlacklist = &MemoryTokenBlacklist{
			tokens: make(map[string]time.Time),
		}
		// 定期清理过期令牌
		go memoryBlacklist.cleanupTask()
	})
	return memoryBlacklist
}

// AddToBlacklist 将令牌添加到黑名单
func (b *MemoryTokenBlacklist) AddToBlacklist(token string, expireAt time.Time) error {
	if time.Until(expireAt) <= 0 {
		return nil
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.tokens[token] = expireAt
	return nil
}

// IsBlacklisted 检查令牌是否在黑名单中
func (b *MemoryTokenBlacklist) IsBlacklisted(token string) bool {
	b.mutex.RLock()
	expireAt, exists := b.tokens[token]
	b.mutex.RUnlock()
	if !exists {
		return false
	}
	if time.Now().After(expireAt) {
		b.mutex.Lock()
		delete(b.tokens, token)
		b.mutex.Unlock()
		return false
	}
	return true
}

// cleanupTask 定期清理过期的令牌
func (b *MemoryTokenBlacklist) cleanupTask() {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		b.cleanup()
	}
}

func (b *MemoryTokenBlacklist) cleanup() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	now := time.Now()
	for token, expireAt := range b.tokens {
		if now.After(expireAt) {
			delete(b.tokens, token)
		}
	}
}
