package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carelink-signal/internal/models"
	"carelink-signal/internal/repository"
	"carelink-signal/internal/trend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSignalOps 测试用操作面
type fakeSignalOps struct {
	lastFilters repository.AlertFilters
	alerts      []*models.Alert
	resolveErr  error
}

func (f *fakeSignalOps) ListAlerts(ctx context.Context, filters repository.AlertFilters, page, size int) ([]*models.Alert, int, error) {
	f.lastFilters = filters
	return f.alerts, len(f.alerts), nil
}

func (f *fakeSignalOps) ResolveAlert(ctx context.Context, alertID, resolvedBy string) (*models.Alert, bool, error) {
	if f.resolveErr != nil {
		return nil, false, f.resolveErr
	}
	resolved := &models.Alert{
		AlertID:    alertID,
		Status:     models.AlertStatusResolved,
		ResolvedBy: &resolvedBy,
	}
	return resolved, true, nil
}

func (f *fakeSignalOps) MoodStats(ctx context.Context, subjectID string, days int) (*trend.TrendStats, error) {
	return &trend.TrendStats{SubjectID: subjectID, Days: days, OverallAverage: 6.5}, nil
}

func (f *fakeSignalOps) ListMessages(ctx context.Context, subjectID string, page, size int) ([]*models.Message, int, error) {
	return []*models.Message{}, 0, nil
}

func setupTestRouter(ops *fakeSignalOps) *Router {
	logger := zap.NewNop()
	r := NewRouter(logger)
	r.RegisterSignalRoutes(
		NewAlertHandler(ops, logger),
		NewMoodHandler(ops, logger),
		http.NotFoundHandler(),
	)
	return r
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result[json.RawMessage] {
	t.Helper()
	var result Result[json.RawMessage]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestListAlerts_FilterParsing(t *testing.T) {
	ops := &fakeSignalOps{alerts: []*models.Alert{{AlertID: "a1", SubjectID: "subject-1"}}}
	router := setupTestRouter(ops)

	since := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodGet,
		"/signal/api/v1/alerts?subject_id=subject-1&status=active&severity=high,critical&alert_type=help_press&since="+since, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	assert.Equal(t, ResultSuccess, result.Code)

	require.NotNil(t, ops.lastFilters.SubjectID)
	assert.Equal(t, "subject-1", *ops.lastFilters.SubjectID)
	require.NotNil(t, ops.lastFilters.Status)
	assert.Equal(t, "active", *ops.lastFilters.Status)
	assert.Equal(t, []string{"high", "critical"}, ops.lastFilters.Severities)
	require.NotNil(t, ops.lastFilters.AlertType)
	assert.Equal(t, models.AlertTypeHelpPress, *ops.lastFilters.AlertType)
	assert.NotNil(t, ops.lastFilters.Since)
}

func TestListAlerts_InvalidStatus(t *testing.T) {
	router := setupTestRouter(&fakeSignalOps{})

	req := httptest.NewRequest(http.MethodGet, "/signal/api/v1/alerts?status=open", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultError, result.Code)
	assert.Contains(t, result.Message, "invalid status")
}

func TestListAlerts_MethodNotAllowed(t *testing.T) {
	router := setupTestRouter(&fakeSignalOps{})

	req := httptest.NewRequest(http.MethodPost, "/signal/api/v1/alerts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestResolveAlert_Success(t *testing.T) {
	router := setupTestRouter(&fakeSignalOps{})

	body := strings.NewReader(`{"resolved_by":"nurseA"}`)
	req := httptest.NewRequest(http.MethodPut, "/signal/api/v1/alerts/alert-1/resolve", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	assert.Equal(t, ResultSuccess, result.Code)

	var payload struct {
		Alert        *models.Alert `json:"alert"`
		Transitioned bool          `json:"transitioned"`
	}
	require.NoError(t, json.Unmarshal(result.Result, &payload))
	assert.True(t, payload.Transitioned)
	assert.Equal(t, "nurseA", *payload.Alert.ResolvedBy)
}

func TestResolveAlert_MissingResolvedBy(t *testing.T) {
	router := setupTestRouter(&fakeSignalOps{})

	req := httptest.NewRequest(http.MethodPut, "/signal/api/v1/alerts/alert-1/resolve", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultError, result.Code)
	assert.Contains(t, result.Message, "resolved_by")
}

func TestResolveAlert_NotFound(t *testing.T) {
	ops := &fakeSignalOps{resolveErr: fmt.Errorf("alert not found: alert_id=x")}
	router := setupTestRouter(ops)

	body := strings.NewReader(`{"resolved_by":"nurseA"}`)
	req := httptest.NewRequest(http.MethodPut, "/signal/api/v1/alerts/x/resolve", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveAlert_BadPath(t *testing.T) {
	router := setupTestRouter(&fakeSignalOps{})

	req := httptest.NewRequest(http.MethodPut, "/signal/api/v1/alerts/resolve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMoodStats(t *testing.T) {
	router := setupTestRouter(&fakeSignalOps{})

	req := httptest.NewRequest(http.MethodGet, "/signal/api/v1/mood/stats?subject_id=subject-1&days=14", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultSuccess, result.Code)

	var stats trend.TrendStats
	require.NoError(t, json.Unmarshal(result.Result, &stats))
	assert.Equal(t, "subject-1", stats.SubjectID)
	assert.Equal(t, 14, stats.Days)
}

func TestMoodStats_MissingSubject(t *testing.T) {
	router := setupTestRouter(&fakeSignalOps{})

	req := httptest.NewRequest(http.MethodGet, "/signal/api/v1/mood/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultError, result.Code)
}

func TestHealth(t *testing.T) {
	router := setupTestRouter(&fakeSignalOps{})

	req := httptest.NewRequest(http.MethodGet, "/signal/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
