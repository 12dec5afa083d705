package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"carelink-signal/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockMoodDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *MoodRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewMoodRepository(db, logger)

	return db, mock, repo
}

func TestInsertMoodSample_Success(t *testing.T) {
	db, mock, repo := setupMockMoodDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()
	sample := &models.MoodSample{
		SampleID:   uuid.New().String(),
		SubjectID:  uuid.New().String(),
		Score:      3,
		Snippet:    "I fell over this morning",
		Provenance: "conversation",
		RecordedAt: now,
	}

	mock.ExpectExec(`INSERT INTO mood_samples`).
		WithArgs(sample.SampleID, sample.SubjectID, 3, sample.Snippet, "conversation", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.InsertMoodSample(ctx, sample)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertMoodSample_ScoreOutOfRange(t *testing.T) {
	db, mock, repo := setupMockMoodDB(t)
	defer db.Close()

	sample := &models.MoodSample{
		SampleID:  uuid.New().String(),
		SubjectID: uuid.New().String(),
		Score:     11,
	}

	err := repo.InsertMoodSample(context.Background(), sample)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "score must be in [1,10]")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSymptomEvent_Success(t *testing.T) {
	db, mock, repo := setupMockMoodDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()
	bodyPart := "hip"
	event := &models.SymptomEvent{
		EventID:     uuid.New().String(),
		SubjectID:   uuid.New().String(),
		SymptomType: models.SymptomPain,
		Severity:    models.SeverityMedium,
		MatchedSpan: "my hip is really sore",
		BodyPart:    &bodyPart,
		RecordedAt:  now,
	}

	mock.ExpectExec(`INSERT INTO symptom_events`).
		WithArgs(event.EventID, event.SubjectID, event.SymptomType, event.Severity,
			event.MatchedSpan, &bodyPart, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.InsertSymptomEvent(ctx, event)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAverageScoreSince(t *testing.T) {
	db, mock, repo := setupMockMoodDB(t)
	defer db.Close()

	ctx := context.Background()
	subjectID := uuid.New().String()
	since := time.Now().Add(-72 * time.Hour)

	mock.ExpectQuery(`SELECT COALESCE\(AVG\(score\), 0\), COUNT\(\*\)`).
		WithArgs(subjectID, since).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "count"}).AddRow(3.5, 6))

	avg, count, err := repo.AverageScoreSince(ctx, subjectID, since)

	require.NoError(t, err)
	assert.Equal(t, 3.5, avg)
	assert.Equal(t, 6, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyAverages(t *testing.T) {
	db, mock, repo := setupMockMoodDB(t)
	defer db.Close()

	ctx := context.Background()
	subjectID := uuid.New().String()
	from := time.Now().Add(-7 * 24 * time.Hour)
	to := time.Now()

	day1 := from.Truncate(24 * time.Hour)
	day2 := day1.Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{"day", "avg", "count"}).
		AddRow(day1, 6.2, 4).
		AddRow(day2, 4.8, 5)

	mock.ExpectQuery(`SELECT`).
		WithArgs(subjectID, from, to).
		WillReturnRows(rows)

	averages, err := repo.DailyAverages(ctx, subjectID, from, to)

	require.NoError(t, err)
	require.Len(t, averages, 2)
	assert.Equal(t, 6.2, averages[0].Average)
	assert.Equal(t, 5, averages[1].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}
