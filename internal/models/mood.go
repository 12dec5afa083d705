package models

import (
	"time"
)

// MoodSample 情绪采样（对应 mood_samples 表，append-only）
type MoodSample struct {
	SampleID   string    `json:"sample_id" db:"sample_id"`
	SubjectID  string    `json:"subject_id" db:"subject_id"`
	Score      int       `json:"score" db:"score"` // 1-10
	Snippet    string    `json:"snippet" db:"snippet"`
	Provenance string    `json:"provenance" db:"provenance"` // conversation, questionnaire 等
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"`
}

// SymptomType 症状分类
type SymptomType string

const (
	SymptomPain       SymptomType = "pain"
	SymptomFall       SymptomType = "fall"
	SymptomBreathing  SymptomType = "breathing"
	SymptomAppetite   SymptomType = "appetite"
	SymptomSleep      SymptomType = "sleep"
	SymptomDizziness  SymptomType = "dizziness"
	SymptomLoneliness SymptomType = "loneliness"
)

// SymptomEvent 症状事件（对应 symptom_events 表，append-only）
// 每条语句每个分类最多产生一条事件
type SymptomEvent struct {
	EventID     string      `json:"event_id" db:"event_id"`
	SubjectID   string      `json:"subject_id" db:"subject_id"`
	SymptomType SymptomType `json:"symptom_type" db:"symptom_type"`
	Severity    Severity    `json:"severity" db:"severity"`
	MatchedSpan string      `json:"matched_span" db:"matched_span"`
	BodyPart    *string     `json:"body_part,omitempty" db:"body_part"`
	RecordedAt  time.Time   `json:"recorded_at" db:"recorded_at"`
}
