package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carelink-signal/internal/models"

	"go.uber.org/zap"
)

// MoodRepository 情绪数据仓库（mood_samples / symptom_events 表，append-only）
type MoodRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMoodRepository 创建情绪数据仓库
func NewMoodRepository(db *sql.DB, logger *zap.Logger) *MoodRepository {
	return &MoodRepository{
		db:     db,
		logger: logger,
	}
}

// DayAverage 单日情绪均值
type DayAverage struct {
	Day     time.Time `json:"day"`
	Average float64   `json:"average"`
	Count   int       `json:"count"`
}

// InsertMoodSample 写入情绪采样
func (r *MoodRepository) InsertMoodSample(ctx context.Context, sample *models.MoodSample) error {
	if sample == nil {
		return fmt.Errorf("sample is required")
	}
	if sample.SampleID == "" {
		return fmt.Errorf("sample_id is required")
	}
	if sample.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}
	if sample.Score < 1 || sample.Score > 10 {
		return fmt.Errorf("score must be in [1,10], got %d", sample.Score)
	}

	query := `
		INSERT INTO mood_samples (
			sample_id,
			subject_id,
			score,
			snippet,
			provenance,
			recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		sample.SampleID,
		sample.SubjectID,
		sample.Score,
		sample.Snippet,
		sample.Provenance,
		sample.RecordedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert mood sample: %w", err)
	}

	return nil
}

// InsertSymptomEvent 写入症状事件
func (r *MoodRepository) InsertSymptomEvent(ctx context.Context, event *models.SymptomEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if event.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	query := `
		INSERT INTO symptom_events (
			event_id,
			subject_id,
			symptom_type,
			severity,
			matched_span,
			body_part,
			recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.SubjectID,
		event.SymptomType,
		event.Severity,
		event.MatchedSpan,
		event.BodyPart,
		event.RecordedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert symptom event: %w", err)
	}

	return nil
}

// AverageScoreSince 计算一个被照护者自 since 之后的情绪均值
// 没有采样时返回 (0, 0, nil)
func (r *MoodRepository) AverageScoreSince(ctx context.Context, subjectID string, since time.Time) (float64, int, error) {
	if subjectID == "" {
		return 0, 0, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT COALESCE(AVG(score), 0), COUNT(*)
		FROM mood_samples
		WHERE subject_id = $1
		  AND recorded_at >= $2
	`

	var avg float64
	var count int
	err := r.db.QueryRowContext(ctx, query, subjectID, since).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query average score: %w", err)
	}

	return avg, count, nil
}

// DailyAverages 按天聚合情绪均值（只读统计，绝不触发报警）
func (r *MoodRepository) DailyAverages(ctx context.Context, subjectID string, from, to time.Time) ([]DayAverage, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT
			date_trunc('day', recorded_at) AS day,
			AVG(score),
			COUNT(*)
		FROM mood_samples
		WHERE subject_id = $1
		  AND recorded_at >= $2
		  AND recorded_at <= $3
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily averages: %w", err)
	}
	defer rows.Close()

	averages := []DayAverage{}
	for rows.Next() {
		var da DayAverage
		if err := rows.Scan(&da.Day, &da.Average, &da.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily average: %w", err)
		}
		averages = append(averages, da)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily averages: %w", err)
	}

	return averages, nil
}

// ListSymptomEvents 查询一个被照护者的症状事件（按最近时间排序）
func (r *MoodRepository) ListSymptomEvents(ctx context.Context, subjectID string, since time.Time, limit int) ([]*models.SymptomEvent, error) {
	if subjectID == "" {
		return []*models.SymptomEvent{}, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			event_id,
			subject_id,
			symptom_type,
			severity,
			matched_span,
			body_part,
			recorded_at
		FROM symptom_events
		WHERE subject_id = $1
		  AND recorded_at >= $2
		ORDER BY recorded_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query symptom events: %w", err)
	}
	defer rows.Close()

	events := []*models.SymptomEvent{}
	for rows.Next() {
		var event models.SymptomEvent
		var bodyPart sql.NullString

		err := rows.Scan(
			&event.EventID,
			&event.SubjectID,
			&event.SymptomType,
			&event.Severity,
			&event.MatchedSpan,
			&bodyPart,
			&event.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan symptom event: %w", err)
		}

		if bodyPart.Valid {
			event.BodyPart = &bodyPart.String
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate symptom events: %w", err)
	}

	return events, nil
}
