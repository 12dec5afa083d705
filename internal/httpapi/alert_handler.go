package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"carelink-signal/internal/models"
	"carelink-signal/internal/repository"

	"go.uber.org/zap"
)

// AlertOps 报警 Handler 依赖的操作面（由 service.SignalService 实现）
type AlertOps interface {
	ListAlerts(ctx context.Context, filters repository.AlertFilters, page, size int) ([]*models.Alert, int, error)
	ResolveAlert(ctx context.Context, alertID, resolvedBy string) (*models.Alert, bool, error)
}

// AlertHandler 报警 Handler
type AlertHandler struct {
	service AlertOps
	logger  *zap.Logger
}

// NewAlertHandler 创建报警 Handler
func NewAlertHandler(service AlertOps, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		service: service,
		logger:  logger,
	}
}

// ============================================
// ListAlerts 查询报警列表
// ============================================

// ListAlerts 查询报警列表
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filters := repository.AlertFilters{}

	if subjectID := strings.TrimSpace(query.Get("subject_id")); subjectID != "" {
		filters.SubjectID = &subjectID
	}
	if status := strings.TrimSpace(query.Get("status")); status != "" {
		if status != string(models.AlertStatusActive) && status != string(models.AlertStatusResolved) {
			writeJSON(w, http.StatusOK, Fail("invalid status: "+status))
			return
		}
		filters.Status = &status
	}
	if severities := strings.TrimSpace(query.Get("severity")); severities != "" {
		filters.Severities = strings.Split(severities, ",")
	}
	if alertType := strings.TrimSpace(query.Get("alert_type")); alertType != "" {
		at := models.AlertType(alertType)
		filters.AlertType = &at
	}
	if sinceStr := strings.TrimSpace(query.Get("since")); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeJSON(w, http.StatusOK, Fail("invalid since: "+sinceStr))
			return
		}
		filters.Since = &since
	}

	page := parseInt(query.Get("page"), 1)
	pageSize := parseInt(query.Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}

	alerts, total, err := h.service.ListAlerts(ctx, filters, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list alerts",
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail("failed to list alerts"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": alerts,
		"total": total,
		"page":  page,
		"size":  pageSize,
	}))
}

// ============================================
// ResolveAlert 解决报警
// ============================================

type resolveAlertRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// ResolveAlert 解决报警（幂等；重复解决返回当前状态）
func (h *AlertHandler) ResolveAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	ctx := r.Context()

	var req resolveAlertRequest
	if err := readBodyJSON(r, 1<<16, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}
	if req.ResolvedBy == "" {
		writeJSON(w, http.StatusOK, Fail("resolved_by is required"))
		return
	}

	alert, transitioned, err := h.service.ResolveAlert(ctx, alertID, req.ResolvedBy)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeJSON(w, http.StatusNotFound, Fail(err.Error()))
			return
		}
		h.logger.Error("Failed to resolve alert",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail("failed to resolve alert"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"alert":        alert,
		"transitioned": transitioned,
	}))
}
