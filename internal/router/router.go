package router

import (
	"context"

	"carelink-signal/internal/models"
	"carelink-signal/internal/push"
	"carelink-signal/internal/registry"

	"go.uber.org/zap"
)

// Router 受众路由器
// 把一个逻辑事件扇出到受众内每条活跃连接（每条连接至多投递一次），
// 离线成员按策略回落到推送通知；传输失败不重试（重试属于更上层的 outbox）
type Router struct {
	registry *registry.Registry
	push     push.Sender
	logger   *zap.Logger
}

// NewRouter 创建受众路由器
func NewRouter(reg *registry.Registry, pushSender push.Sender, logger *zap.Logger) *Router {
	return &Router{
		registry: reg,
		push:     pushSender,
		logger:   logger,
	}
}

// Broadcast 计算受众并扇出事件
// "已投递" 的含义是"已交给活跃连接的写队列"，不等待远端确认
func (r *Router) Broadcast(ctx context.Context, subject models.Subject, category models.EventCategory, severity models.Severity, targetActorID string, ev models.Event, pushTitle, pushBody string) {
	audience := Compute(subject, category, severity, targetActorID)

	delivered := 0
	for _, ac := range r.registry.Match(audience.Match) {
		for _, conn := range ac.Conns {
			if conn.Send(ev) {
				delivered++
			} else {
				// 写队列满或连接已关闭：按 best-effort 丢弃
				r.logger.Warn("Dropped event on slow connection",
					zap.String("actor_id", ac.Actor.ActorID),
					zap.String("conn_id", conn.ID()),
					zap.String("event_type", ev.Type),
				)
			}
		}
	}

	r.logger.Debug("Event fanned out",
		zap.String("event_type", ev.Type),
		zap.String("subject_id", subject.SubjectID),
		zap.String("category", string(category)),
		zap.Int("delivered", delivered),
	)

	// 推送回落：仅限按 ID 标识且当前不在线（任何实例上）的受众成员；
	// 没有推送文案的事件（回执、解除、presence）不回落
	if r.push == nil || len(audience.OfflinePush) == 0 || (pushTitle == "" && pushBody == "") {
		return
	}
	for _, actorID := range audience.OfflinePush {
		if r.registry.IsOnline(ctx, actorID) {
			continue
		}
		if err := r.push.Send(actorID, pushTitle, pushBody); err != nil {
			r.logger.Warn("Push notification failed",
				zap.String("actor_id", actorID),
				zap.Error(err),
			)
		}
	}
}

// SendToActor 把事件投递给单个 actor 的全部活跃连接（呼叫信令等点对点事件）
// 返回实际投递的连接数
func (r *Router) SendToActor(actorID string, ev models.Event) int {
	delivered := 0
	for _, conn := range r.registry.Connections(actorID) {
		if conn.Send(ev) {
			delivered++
		} else {
			r.logger.Warn("Dropped event on slow connection",
				zap.String("actor_id", actorID),
				zap.String("conn_id", conn.ID()),
				zap.String("event_type", ev.Type),
			)
		}
	}
	return delivered
}
