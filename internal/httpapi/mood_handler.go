package httpapi

import (
	"context"
	"net/http"
	"strings"

	"carelink-signal/internal/models"
	"carelink-signal/internal/trend"

	"go.uber.org/zap"
)

// MoodOps 情绪 Handler 依赖的操作面（由 service.SignalService 实现）
type MoodOps interface {
	MoodStats(ctx context.Context, subjectID string, days int) (*trend.TrendStats, error)
	ListMessages(ctx context.Context, subjectID string, page, size int) ([]*models.Message, int, error)
}

// MoodHandler 情绪统计与消息 Handler
type MoodHandler struct {
	service MoodOps
	logger  *zap.Logger
}

// NewMoodHandler 创建情绪统计 Handler
func NewMoodHandler(service MoodOps, logger *zap.Logger) *MoodHandler {
	return &MoodHandler{
		service: service,
		logger:  logger,
	}
}

// MoodStats 查询情绪趋势统计（只读，绝不触发报警）
func (h *MoodHandler) MoodStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID := strings.TrimSpace(r.URL.Query().Get("subject_id"))
	if subjectID == "" {
		writeJSON(w, http.StatusOK, Fail("subject_id is required"))
		return
	}
	days := parseInt(r.URL.Query().Get("days"), 7)
	if days > 90 {
		days = 90
	}

	stats, err := h.service.MoodStats(ctx, subjectID, days)
	if err != nil {
		h.logger.Error("Failed to compute mood stats",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail("failed to compute mood stats"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(stats))
}

// ListMessages 查询消息列表
func (h *MoodHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID := strings.TrimSpace(r.URL.Query().Get("subject_id"))
	if subjectID == "" {
		writeJSON(w, http.StatusOK, Fail("subject_id is required"))
		return
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	pageSize := parseInt(r.URL.Query().Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}

	messages, total, err := h.service.ListMessages(ctx, subjectID, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list messages",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail("failed to list messages"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": messages,
		"total": total,
		"page":  page,
		"size":  pageSize,
	}))
}
