package call

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"carelink-signal/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallState 呼叫状态
type CallState string

const (
	StateRinging CallState = "ringing" // 设备端振铃中
	StateActive  CallState = "active"  // 已接通
	StateEnded   CallState = "ended"   // 终态
)

// 结束原因
const (
	ReasonRejected     = "rejected"
	ReasonTimeout      = "timeout"
	ReasonHangup       = "hangup"
	ReasonDisconnected = "disconnected"
)

var (
	// ErrCallConflict 同一被照护者已有进行中的呼叫
	ErrCallConflict = errors.New("subject already has a call in progress")
	// ErrCallNotFound 呼叫不存在或已结束
	ErrCallNotFound = errors.New("call not found")
)

// Notifier 呼叫信令的点对点投递方（由路由层实现）
type Notifier interface {
	SendToActor(actorID string, ev models.Event) int
}

// Call 一次呼叫会话
type Call struct {
	CallID        string
	SubjectID     string
	CallerID      string
	DeviceActorID string
	State         CallState
	StartedAt     time.Time

	ringTimer *time.Timer
}

// Coordinator 呼叫信令协调器
// 每个被照护者同一时刻至多一路呼叫；振铃超时未接自动结束
type Coordinator struct {
	notifier    Notifier
	ringTimeout time.Duration
	logger      *zap.Logger

	mu        sync.Mutex
	bySubject map[string]*Call
	byCallID  map[string]*Call
}

// NewCoordinator 创建呼叫信令协调器
func NewCoordinator(notifier Notifier, ringTimeout time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		notifier:    notifier,
		ringTimeout: ringTimeout,
		logger:      logger,
		bySubject:   make(map[string]*Call),
		byCallID:    make(map[string]*Call),
	}
}

// Initiate 发起呼叫：向设备端推送 call.ringing，启动振铃超时
// 同一被照护者已有进行中的呼叫时返回 ErrCallConflict
func (c *Coordinator) Initiate(callerID, subjectID, deviceActorID string) (*Call, error) {
	if callerID == "" || subjectID == "" {
		return nil, fmt.Errorf("caller_id and subject_id are required")
	}
	if deviceActorID == "" {
		return nil, fmt.Errorf("subject has no device actor")
	}

	c.mu.Lock()
	if _, exists := c.bySubject[subjectID]; exists {
		c.mu.Unlock()
		return nil, ErrCallConflict
	}

	call := &Call{
		CallID:        uuid.New().String(),
		SubjectID:     subjectID,
		CallerID:      callerID,
		DeviceActorID: deviceActorID,
		State:         StateRinging,
		StartedAt:     time.Now(),
	}
	call.ringTimer = time.AfterFunc(c.ringTimeout, func() {
		c.timeout(call.CallID)
	})
	c.bySubject[subjectID] = call
	c.byCallID[call.CallID] = call
	c.mu.Unlock()

	c.logger.Info("Call initiated",
		zap.String("call_id", call.CallID),
		zap.String("subject_id", subjectID),
		zap.String("caller_id", callerID),
	)

	delivered := c.notifier.SendToActor(deviceActorID, c.event(models.EventCallRinging, call, ""))
	if delivered == 0 {
		// 设备不在线：立即按未接处理，不让呼叫方白等振铃超时
		c.logger.Warn("Call target offline, ending call",
			zap.String("call_id", call.CallID),
			zap.String("device_actor_id", deviceActorID),
		)
		c.endCall(call.CallID, ReasonTimeout, callerID)
		return nil, fmt.Errorf("device is offline")
	}

	return call, nil
}

// Accept 设备端接听：ringing → active，通知呼叫方 call.accepted
func (c *Coordinator) Accept(callID, actorID string) error {
	c.mu.Lock()
	call, exists := c.byCallID[callID]
	if !exists || call.State != StateRinging {
		c.mu.Unlock()
		return ErrCallNotFound
	}
	if actorID != call.DeviceActorID {
		c.mu.Unlock()
		return fmt.Errorf("actor %s is not the call target", actorID)
	}

	call.State = StateActive
	call.ringTimer.Stop()
	caller := call.CallerID
	ev := c.event(models.EventCallAccepted, call, "")
	c.mu.Unlock()

	c.logger.Info("Call accepted", zap.String("call_id", callID))
	c.notifier.SendToActor(caller, ev)
	return nil
}

// Reject 设备端拒接：ringing → ended，通知呼叫方 call.rejected
func (c *Coordinator) Reject(callID, actorID string) error {
	c.mu.Lock()
	call, exists := c.byCallID[callID]
	if !exists || call.State != StateRinging {
		c.mu.Unlock()
		return ErrCallNotFound
	}
	if actorID != call.DeviceActorID {
		c.mu.Unlock()
		return fmt.Errorf("actor %s is not the call target", actorID)
	}
	caller := call.CallerID
	c.removeLocked(call)
	ev := c.event(models.EventCallRejected, call, ReasonRejected)
	c.mu.Unlock()

	c.logger.Info("Call rejected", zap.String("call_id", callID))
	c.notifier.SendToActor(caller, ev)
	return nil
}

// End 任一方挂断：ringing/active → ended，通知对端 call.ended
func (c *Coordinator) End(callID, actorID string) error {
	c.mu.Lock()
	call, exists := c.byCallID[callID]
	if !exists {
		c.mu.Unlock()
		return ErrCallNotFound
	}
	if actorID != call.CallerID && actorID != call.DeviceActorID {
		c.mu.Unlock()
		return fmt.Errorf("actor %s is not a call party", actorID)
	}

	peer := call.CallerID
	if actorID == call.CallerID {
		peer = call.DeviceActorID
	}
	c.removeLocked(call)
	ev := c.event(models.EventCallEnded, call, ReasonHangup)
	c.mu.Unlock()

	c.logger.Info("Call ended",
		zap.String("call_id", callID),
		zap.String("ended_by", actorID),
	)
	c.notifier.SendToActor(peer, ev)
	return nil
}

// HandleDisconnect 一方彻底离线时结束其参与的呼叫并通知对端
func (c *Coordinator) HandleDisconnect(actorID string) {
	c.mu.Lock()
	var affected []*Call
	for _, call := range c.byCallID {
		if call.CallerID == actorID || call.DeviceActorID == actorID {
			affected = append(affected, call)
		}
	}

	type pending struct {
		peer string
		ev   models.Event
	}
	var notifications []pending
	for _, call := range affected {
		peer := call.CallerID
		if actorID == call.CallerID {
			peer = call.DeviceActorID
		}
		c.removeLocked(call)
		notifications = append(notifications, pending{
			peer: peer,
			ev:   c.event(models.EventCallEnded, call, ReasonDisconnected),
		})
	}
	c.mu.Unlock()

	for _, n := range notifications {
		c.notifier.SendToActor(n.peer, n.ev)
	}
}

// Get 查询呼叫（测试与诊断用）
func (c *Coordinator) Get(callID string) (*Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, exists := c.byCallID[callID]
	return call, exists
}

// timeout 振铃超时：结束呼叫并通知呼叫方
func (c *Coordinator) timeout(callID string) {
	c.mu.Lock()
	call, exists := c.byCallID[callID]
	if !exists || call.State != StateRinging {
		c.mu.Unlock()
		return
	}
	caller := call.CallerID
	c.removeLocked(call)
	ev := c.event(models.EventCallEnded, call, ReasonTimeout)
	c.mu.Unlock()

	c.logger.Info("Call ring timeout", zap.String("call_id", callID))
	c.notifier.SendToActor(caller, ev)
}

// endCall 以指定原因结束呼叫并通知 notifyActor
func (c *Coordinator) endCall(callID, reason, notifyActor string) {
	c.mu.Lock()
	call, exists := c.byCallID[callID]
	if !exists {
		c.mu.Unlock()
		return
	}
	c.removeLocked(call)
	ev := c.event(models.EventCallEnded, call, reason)
	c.mu.Unlock()

	c.notifier.SendToActor(notifyActor, ev)
}

// removeLocked 置为终态并从索引中移除（调用方持有 c.mu）
func (c *Coordinator) removeLocked(call *Call) {
	call.State = StateEnded
	if call.ringTimer != nil {
		call.ringTimer.Stop()
	}
	delete(c.bySubject, call.SubjectID)
	delete(c.byCallID, call.CallID)
}

// event 构建 call.* 事件
func (c *Coordinator) event(eventType string, call *Call, reason string) models.Event {
	return models.NewEvent(eventType, call.SubjectID, models.CallPayload{
		CallID:    call.CallID,
		SubjectID: call.SubjectID,
		CallerID:  call.CallerID,
		Reason:    reason,
	})
}
