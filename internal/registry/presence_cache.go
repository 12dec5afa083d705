package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PresenceCache 在线状态的共享缓存镜像
// 水平扩展部署中，其它实例通过该镜像回答 presence 查询；
// 时效性由 TTL 刷新（≤5s）+ 确认离线时的主动删除保证
type PresenceCache struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *zap.Logger
}

// NewPresenceCache 创建 presence 缓存
func NewPresenceCache(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *PresenceCache {
	return &PresenceCache{
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
	}
}

// presenceKey 构建 presence 键
func presenceKey(actorID string) string {
	return fmt.Sprintf("presence:actor:%s", actorID)
}

// SetOnline 标记 actor 在线（带 TTL，由注册表定期刷新）
func (p *PresenceCache) SetOnline(ctx context.Context, actorID string) error {
	err := p.redisClient.Set(ctx, presenceKey(actorID), "1", p.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

// SetOffline 确认离线时主动失效（事件驱动，不等 TTL 过期）
func (p *PresenceCache) SetOffline(ctx context.Context, actorID string) error {
	err := p.redisClient.Del(ctx, presenceKey(actorID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

// IsOnline 查询 actor 是否在线（跨实例）
func (p *PresenceCache) IsOnline(ctx context.Context, actorID string) (bool, error) {
	count, err := p.redisClient.Exists(ctx, presenceKey(actorID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return count > 0, nil
}
