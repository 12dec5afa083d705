package models

import (
	"time"
)

// Severity 报警级别
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertStatus 报警状态（软生命周期，不做物理删除）
type AlertStatus string

const (
	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
)

// AlertType 报警类型
type AlertType string

const (
	AlertTypeHelpPress AlertType = "help_press" // 求助按钮
	AlertTypeMoodTrend AlertType = "mood_trend" // 情绪趋势（3天均值过低）
	AlertTypeSymptom   AlertType = "symptom"    // 症状报警
)

// Alert 报警实体（对应 alerts 表）
// 不变式：对已 resolved 的报警再次 resolve 是 no-op，不是错误
type Alert struct {
	AlertID    string      `json:"alert_id" db:"alert_id"`
	SubjectID  string      `json:"subject_id" db:"subject_id"`
	AlertType  AlertType   `json:"alert_type" db:"alert_type"`
	Severity   Severity    `json:"severity" db:"severity"`
	Message    string      `json:"message" db:"message"`
	Status     AlertStatus `json:"status" db:"status"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy *string     `json:"resolved_by,omitempty" db:"resolved_by"`
}

// IsNotifiable 高级别报警需要离线推送（家属也要收到）
func (s Severity) IsNotifiable() bool {
	return s == SeverityHigh || s == SeverityCritical
}
