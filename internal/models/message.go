package models

import (
	"time"
)

// Message 消息实体（对应 messages 表）
// 已读回执是单向迁移：unread → read，不可回退
type Message struct {
	MessageID     string     `json:"message_id" db:"message_id"`
	SubjectID     string     `json:"subject_id" db:"subject_id"`
	SenderActorID string     `json:"sender_actor_id" db:"sender_actor_id"`
	Content       string     `json:"content" db:"content"`
	ReadAloud     bool       `json:"read_aloud" db:"read_aloud"` // 设备端是否语音播报
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty" db:"read_at"`
}
