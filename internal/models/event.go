package models

import (
	"encoding/json"
	"time"
)

// EventCategory 事件分类（决定受众，见 router.Audience 可见性表）
type EventCategory string

const (
	CategoryHelpPress       EventCategory = "help_press"
	CategoryAlert           EventCategory = "alert"
	CategoryMessageToDevice EventCategory = "message_to_device"
	CategoryMessageToFamily EventCategory = "message_to_family"
	CategoryPresence        EventCategory = "presence"
	CategoryCall            EventCategory = "call"
)

// 出站事件类型
const (
	EventAlertNew        = "alert.new"
	EventAlertResolved   = "alert.resolved"
	EventMessageNew      = "message.new"
	EventMessageRead     = "message.read"
	EventPresenceChanged = "presence.changed"
	EventCallRinging     = "call.ringing"
	EventCallAccepted    = "call.accepted"
	EventCallRejected    = "call.rejected"
	EventCallEnded       = "call.ended"
)

// Event 出站事件信封（经 WebSocket 下发）
type Event struct {
	Type      string          `json:"type"`
	SubjectID string          `json:"subject_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent 构建出站事件（payload 序列化失败时降级为空 payload）
func NewEvent(eventType, subjectID string, payload interface{}) Event {
	ev := Event{
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: time.Now().Unix(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// PresencePayload presence.changed 事件载荷
type PresencePayload struct {
	ActorID string `json:"actor_id"`
	Role    Role   `json:"role"`
	Online  bool   `json:"online"`
}

// CallPayload call.* 事件载荷
type CallPayload struct {
	CallID    string `json:"call_id"`
	SubjectID string `json:"subject_id"`
	CallerID  string `json:"caller_id"`
	Reason    string `json:"reason,omitempty"`
}
