package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"carelink-signal/internal/models"

	"go.uber.org/zap"
)

// AlertsRepository 报警仓库（alerts 表）
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository 创建报警仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

// AlertFilters 报警查询过滤条件
type AlertFilters struct {
	SubjectID  *string           // 被照护者过滤
	Status     *string           // 状态过滤（active, resolved）
	Severities []string          // 级别列表（IN 查询）
	AlertType  *models.AlertType // 类型过滤
	Since      *time.Time        // created_at >= Since
}

// CreateAlert 创建报警
func (r *AlertsRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if alert.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	query := `
		INSERT INTO alerts (
			alert_id,
			subject_id,
			alert_type,
			severity,
			message,
			status,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.SubjectID,
		alert.AlertType,
		alert.Severity,
		alert.Message,
		alert.Status,
		alert.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// ResolveAlert 解决报警（幂等：仅当 status='active' 时更新）
// 返回值表示本次调用是否真正发生了状态迁移；
// 对已 resolved 的报警再次调用是 no-op（false, nil），不是错误
func (r *AlertsRepository) ResolveAlert(ctx context.Context, alertID, resolvedBy string) (bool, error) {
	if alertID == "" {
		return false, fmt.Errorf("alert_id is required")
	}
	if resolvedBy == "" {
		return false, fmt.Errorf("resolved_by is required")
	}

	query := `
		UPDATE alerts
		SET status = 'resolved',
		    resolved_at = $1,
		    resolved_by = $2
		WHERE alert_id = $3
		  AND status = 'active'
	`

	result, err := r.db.ExecContext(ctx, query, time.Now(), resolvedBy, alertID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	// 没有行受影响：要么已 resolved（no-op），要么报警不存在
	var status string
	err = r.db.QueryRowContext(ctx,
		`SELECT status FROM alerts WHERE alert_id = $1`,
		alertID,
	).Scan(&status)

	if err != nil {
		if err == sql.ErrNoRows {
			return false, fmt.Errorf("alert not found: alert_id=%s", alertID)
		}
		return false, fmt.Errorf("failed to check alert status: %w", err)
	}

	return false, nil
}

// GetAlert 获取单个报警
func (r *AlertsRepository) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT
			alert_id,
			subject_id,
			alert_type,
			severity,
			message,
			status,
			created_at,
			resolved_at,
			resolved_by
		FROM alerts
		WHERE alert_id = $1
	`

	var alert models.Alert
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullString

	err := r.db.QueryRowContext(ctx, query, alertID).Scan(
		&alert.AlertID,
		&alert.SubjectID,
		&alert.AlertType,
		&alert.Severity,
		&alert.Message,
		&alert.Status,
		&alert.CreatedAt,
		&resolvedAt,
		&resolvedBy,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert not found: alert_id=%s", alertID)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		alert.ResolvedBy = &resolvedBy.String
	}

	return &alert, nil
}

// ListAlerts 列表查询（按最近时间排序，支持分页）
func (r *AlertsRepository) ListAlerts(ctx context.Context, filters AlertFilters, page, size int) ([]*models.Alert, int, error) {
	args := []interface{}{}
	argN := 1
	where := []string{}

	if filters.SubjectID != nil {
		where = append(where, fmt.Sprintf("subject_id = $%d", argN))
		args = append(args, *filters.SubjectID)
		argN++
	}
	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, *filters.Status)
		argN++
	}
	if filters.AlertType != nil {
		where = append(where, fmt.Sprintf("alert_type = $%d", argN))
		args = append(args, *filters.AlertType)
		argN++
	}
	if len(filters.Severities) > 0 {
		placeholders := make([]string, len(filters.Severities))
		for i := range filters.Severities {
			placeholders[i] = fmt.Sprintf("$%d", argN)
			args = append(args, filters.Severities[i])
			argN++
		}
		where = append(where, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filters.Since != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", argN))
		args = append(args, *filters.Since)
		argN++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	// 计算总数
	queryCount := fmt.Sprintf(`SELECT COUNT(*) FROM alerts %s`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT
			alert_id,
			subject_id,
			alert_type,
			severity,
			message,
			status,
			created_at,
			resolved_at,
			resolved_by
		FROM alerts
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argN, argN+1)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		var alert models.Alert
		var resolvedAt sql.NullTime
		var resolvedBy sql.NullString

		err := rows.Scan(
			&alert.AlertID,
			&alert.SubjectID,
			&alert.AlertType,
			&alert.Severity,
			&alert.Message,
			&alert.Status,
			&alert.CreatedAt,
			&resolvedAt,
			&resolvedBy,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}

		if resolvedAt.Valid {
			alert.ResolvedAt = &resolvedAt.Time
		}
		if resolvedBy.Valid {
			alert.ResolvedBy = &resolvedBy.String
		}

		alerts = append(alerts, &alert)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, total, nil
}
