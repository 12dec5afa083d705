package registry

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"carelink-signal/internal/models"

	"go.uber.org/zap"
)

const shardCount = 32

// Conn 物理连接的最小接口（由 ws 层实现）
type Conn interface {
	ID() string
	// Send 非阻塞投递；返回 false 表示连接写队列已满或已关闭
	Send(ev models.Event) bool
	// Close 关闭底层连接
	Close()
}

// PresenceEvent 在线状态迁移事件（0→1 或 1→0）
type PresenceEvent struct {
	Actor  models.Actor
	Online bool
}

// ActorConns 一个 actor 及其全部活跃连接的快照
type ActorConns struct {
	Actor models.Actor
	Conns []Conn
}

// actorEntry 单个 actor 的连接集合
type actorEntry struct {
	actor        models.Actor
	conns        map[string]Conn
	offlineTimer *time.Timer // 去抖窗口中待确认的离线
}

// shard 按 actor_id 哈希的分片：锁的作用域是分片，绝不跨全部 actor 加全局锁
type shard struct {
	mu     sync.Mutex
	actors map[string]*actorEntry
}

// Registry 连接注册表
// 每个逻辑 actor 维护活跃连接引用计数：0→1 发出上线事件，
// 1→0 经过短去抖窗口后发出下线事件（吸收平板 Wi-Fi 重连抖动）
type Registry struct {
	shards   [shardCount]*shard
	presence *PresenceCache
	grace    time.Duration
	events   chan PresenceEvent
	logger   *zap.Logger
}

// NewRegistry 创建连接注册表
// grace: 离线去抖窗口；presence 可为 nil（单实例部署、测试）
func NewRegistry(presence *PresenceCache, grace time.Duration, logger *zap.Logger) *Registry {
	r := &Registry{
		presence: presence,
		grace:    grace,
		events:   make(chan PresenceEvent, 256),
		logger:   logger,
	}
	for i := range r.shards {
		r.shards[i] = &shard{actors: make(map[string]*actorEntry)}
	}
	return r
}

// Events 在线状态迁移事件流（由路由层消费，转成 presence.changed 广播）
func (r *Registry) Events() <-chan PresenceEvent {
	return r.events
}

// Start 启动 presence 镜像刷新循环（TTL 的一半周期刷新，保证有界时效）
func (r *Registry) Start(ctx context.Context, refreshInterval time.Duration) {
	if r.presence == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.refreshPresence(ctx)
			}
		}
	}()
}

// refreshPresence 为所有在线 actor 续期 presence 键
func (r *Registry) refreshPresence(ctx context.Context) {
	for _, actorID := range r.onlineActorIDs() {
		if err := r.presence.SetOnline(ctx, actorID); err != nil {
			r.logger.Warn("Failed to refresh presence",
				zap.String("actor_id", actorID),
				zap.Error(err),
			)
		}
	}
}

// shardFor 根据 actor_id 选择分片
func (r *Registry) shardFor(actorID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(actorID))
	return r.shards[h.Sum32()%shardCount]
}

// Register 注册一条连接；0→1 迁移发出上线事件
// 去抖窗口内的重新注册会取消待确认的离线（重连抖动被吸收，不产生事件）
func (r *Registry) Register(actor models.Actor, conn Conn) error {
	if err := actor.Validate(); err != nil {
		return err
	}

	s := r.shardFor(actor.ActorID)
	s.mu.Lock()

	entry, exists := s.actors[actor.ActorID]
	if !exists {
		entry = &actorEntry{
			actor: actor,
			conns: make(map[string]Conn),
		}
		s.actors[actor.ActorID] = entry
	}

	wentOnline := false
	if entry.offlineTimer != nil {
		// 去抖窗口内重连：取消待确认的离线，不发任何事件
		entry.offlineTimer.Stop()
		entry.offlineTimer = nil
	} else if len(entry.conns) == 0 {
		wentOnline = true
	}

	entry.conns[conn.ID()] = conn
	s.mu.Unlock()

	if wentOnline {
		r.logger.Info("Actor went online",
			zap.String("actor_id", actor.ActorID),
			zap.String("role", string(actor.Role)),
		)
		if r.presence != nil {
			if err := r.presence.SetOnline(context.Background(), actor.ActorID); err != nil {
				r.logger.Warn("Failed to mirror presence online",
					zap.String("actor_id", actor.ActorID),
					zap.Error(err),
				)
			}
		}
		r.emit(PresenceEvent{Actor: actor, Online: true})
	}

	return nil
}

// Unregister 注销一条连接；对缺失的注册是幂等的（断连可能与进程重启竞争）
// 1→0 迁移启动去抖计时器，窗口结束仍无连接才确认离线
func (r *Registry) Unregister(actorID, connID string) {
	s := r.shardFor(actorID)
	s.mu.Lock()

	entry, exists := s.actors[actorID]
	if !exists {
		s.mu.Unlock()
		return
	}

	if _, ok := entry.conns[connID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(entry.conns, connID)

	if len(entry.conns) > 0 || entry.offlineTimer != nil {
		s.mu.Unlock()
		return
	}

	// 最后一条连接断开：启动去抖窗口
	actor := entry.actor
	entry.offlineTimer = time.AfterFunc(r.grace, func() {
		r.confirmOffline(actor)
	})
	s.mu.Unlock()
}

// confirmOffline 去抖窗口结束后确认离线
func (r *Registry) confirmOffline(actor models.Actor) {
	s := r.shardFor(actor.ActorID)
	s.mu.Lock()

	entry, exists := s.actors[actor.ActorID]
	if !exists || len(entry.conns) > 0 {
		// 窗口内已重连
		s.mu.Unlock()
		return
	}
	delete(s.actors, actor.ActorID)
	s.mu.Unlock()

	r.logger.Info("Actor went offline",
		zap.String("actor_id", actor.ActorID),
		zap.String("role", string(actor.Role)),
	)
	if r.presence != nil {
		if err := r.presence.SetOffline(context.Background(), actor.ActorID); err != nil {
			r.logger.Warn("Failed to mirror presence offline",
				zap.String("actor_id", actor.ActorID),
				zap.Error(err),
			)
		}
	}
	r.emit(PresenceEvent{Actor: actor, Online: false})
}

// emit 非阻塞发出事件（presence 是 fire-and-forget，队列满时丢弃并记录）
func (r *Registry) emit(ev PresenceEvent) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("Presence event queue full, dropping event",
			zap.String("actor_id", ev.Actor.ActorID),
			zap.Bool("online", ev.Online),
		)
	}
}

// IsOnline 查询 actor 是否在线
// 本地命中优先；本地未知时回落到共享镜像（其它实例上的连接）
func (r *Registry) IsOnline(ctx context.Context, actorID string) bool {
	s := r.shardFor(actorID)
	s.mu.Lock()
	entry, exists := s.actors[actorID]
	local := exists && (len(entry.conns) > 0 || entry.offlineTimer != nil)
	s.mu.Unlock()

	if local {
		return true
	}

	if r.presence != nil {
		online, err := r.presence.IsOnline(ctx, actorID)
		if err != nil {
			r.logger.Warn("Presence cache lookup failed",
				zap.String("actor_id", actorID),
				zap.Error(err),
			)
			return false
		}
		return online
	}

	return false
}

// Connections 获取一个 actor 的全部活跃连接快照
func (r *Registry) Connections(actorID string) []Conn {
	s := r.shardFor(actorID)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.actors[actorID]
	if !exists {
		return nil
	}

	conns := make([]Conn, 0, len(entry.conns))
	for _, c := range entry.conns {
		conns = append(conns, c)
	}
	return conns
}

// Match 按谓词筛选在线 actor 及其连接（路由层用于计算受众的活跃部分）
func (r *Registry) Match(pred func(models.Actor) bool) []ActorConns {
	var result []ActorConns

	for _, s := range r.shards {
		s.mu.Lock()
		for _, entry := range s.actors {
			if len(entry.conns) == 0 || !pred(entry.actor) {
				continue
			}
			conns := make([]Conn, 0, len(entry.conns))
			for _, c := range entry.conns {
				conns = append(conns, c)
			}
			result = append(result, ActorConns{Actor: entry.actor, Conns: conns})
		}
		s.mu.Unlock()
	}

	return result
}

// onlineActorIDs 当前实例上在线的 actor 列表（用于 presence 刷新）
func (r *Registry) onlineActorIDs() []string {
	var ids []string
	for _, s := range r.shards {
		s.mu.Lock()
		for id, entry := range s.actors {
			if len(entry.conns) > 0 {
				ids = append(ids, id)
			}
		}
		s.mu.Unlock()
	}
	return ids
}
