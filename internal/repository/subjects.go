package repository

import (
	"context"
	"database/sql"
	"fmt"

	"carelink-signal/internal/models"

	"go.uber.org/zap"
)

// SubjectsRepository 被照护者目录仓库
// subjects / subject_family 表由平台目录服务维护，此处只读
type SubjectsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubjectsRepository 创建被照护者目录仓库
func NewSubjectsRepository(db *sql.DB, logger *zap.Logger) *SubjectsRepository {
	return &SubjectsRepository{
		db:     db,
		logger: logger,
	}
}

// GetSubject 获取被照护者的路由描述（机构、设备、家属关联）
func (r *SubjectsRepository) GetSubject(ctx context.Context, subjectID string) (*models.Subject, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject_id is required")
	}

	query := `
		SELECT
			subject_id,
			home_id,
			display_name,
			device_actor_id
		FROM subjects
		WHERE subject_id = $1
	`

	var subject models.Subject
	var deviceActorID sql.NullString

	err := r.db.QueryRowContext(ctx, query, subjectID).Scan(
		&subject.SubjectID,
		&subject.HomeID,
		&subject.DisplayName,
		&deviceActorID,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("subject not found: subject_id=%s", subjectID)
		}
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}

	if deviceActorID.Valid {
		subject.DeviceActorID = deviceActorID.String
	}

	familyIDs, err := r.familyActorIDs(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	subject.FamilyIDs = familyIDs

	return &subject, nil
}

// familyActorIDs 查询关注一个被照护者的家属 actor 列表
func (r *SubjectsRepository) familyActorIDs(ctx context.Context, subjectID string) ([]string, error) {
	query := `
		SELECT family_actor_id
		FROM subject_family
		WHERE subject_id = $1
		ORDER BY family_actor_id
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query family links: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan family link: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate family links: %w", err)
	}

	return ids, nil
}
