package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nsxzhou1114/campus-api/internal/logger"
	"github.com/redis/go-redis/v9"
)

// RedisTokenBlacklist Redis令牌黑名单，多实例部署时共享撤销状态
type RedisTokenBlacklist struct {
	redis      *redis.Client
	localCache map[string]time.Time
	mutex      sync.RWMutex
	ctx        context.Context
}

const (
	blacklistKeyPrefix     = "jwt:blacklist:"
	localCacheSyncInterval = 5 * time.Minute
	maxLocalCacheSize      = 10000
)

var (
	redisBlacklist     *RedisTokenBlacklist
	redisBlacklistOnce sync.Once
)

// NewRedisTokenBlacklist 创建Redis令牌黑名单单例
func NewRedisTokenBlacklist(client *redis.Client) *RedisTokenBlacklist {
	redisBlacklistOnce.Do(func() {
		redisBlacklist = &RedisTokenBlacklist{
			redis:      client,
			localCache: make(map[string]time.Time),
			ctx:        context.Background(),
		}
		go redisBlacklist.syncLocalCache()
	})
	return redisBlacklist
}

// AddToBlacklist 将令牌添加到黑名单
func (b *RedisTokenBlacklist) AddToBlacklist(token string, expireAt time.Time) error {
	duration := time.Until(expireAt)
	if duration <= 0 {
		return nil
	}

	key := blacklistKeyPrefix + token
	if err := b.redis.Set(b.ctx, key, "1", duration).Err(); err != nil {
		logger.Errorf("添加令牌到Redis黑名单失败: %v", err)
		return fmt.Errorf("添加令牌到黑名单失败: %w", err)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if len(b.localCache) >= maxLocalCacheSize {
		b.cleanupLocalCacheUnsafe()
	}
	b.localCache[token] = expireAt
	return nil
}

// IsBlacklisted 检查令牌是否在黑名单中
// 先查本地缓存，未命中再查Redis；Redis异常时只信本地缓存
func (b *RedisTokenBlacklist) IsBlacklisted(token string) bool {
	b.mutex.RLock()
	expireAt, exists := b.localCache[token]
	b.mutex.RUnlock()

	if exists {
		if time.Now().After(expireAt) {
			b.mutex.Lock()
			delete(b.localCache, token)
			b.mutex.Unlock()
		} else {
			return true
		}
	}

	key := blacklistKeyPrefix + token
	result, err := b.redis.Exists(b.ctx, key).Result()
	if err != nil {
		logger.Errorf("检查Redis黑名单失败: %v", err)
		return false
	}

	if result > 0 {
		if ttl := b.redis.TTL(b.ctx, key).Val(); ttl > 0 {
			b.mutex.Lock()
			b.localCache[token] = time.Now().Add(ttl)
			b.mutex.Unlock()
		}
		return true
	}

	return false
}

// syncLocalCache 定期清理本地缓存中的过期令牌
func (b *RedisTokenBlacklist) syncLocalCache() {
	ticker := time.NewTicker(localCacheSyncInterval)
	defer ticker.Stop()

	for range ticker.C {
		b.mutex.Lock()
		b.cleanupLocalCacheUnsafe()
		b.mutex.Unlock()
	}
}

func (b *RedisTokenBlacklist) cleanupLocalCacheUnsafe() {
	now := time.Now()
	for token, expireAt := range b.localCache {
		if now.After(expireAt) {
			delete(b.localCache, token)
		}
	}
}
