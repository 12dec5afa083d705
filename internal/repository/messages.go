package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carelink-signal/internal/models"

	"go.uber.org/zap"
)

// MessagesRepository 消息仓库（messages 表）
type MessagesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMessagesRepository 创建消息仓库
func NewMessagesRepository(db *sql.DB, logger *zap.Logger) *MessagesRepository {
	return &MessagesRepository{
		db:     db,
		logger: logger,
	}
}

// CreateMessage 创建消息
func (r *MessagesRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return fmt.Errorf("message is required")
	}
	if msg.MessageID == "" {
		return fmt.Errorf("message_id is required")
	}
	if msg.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}
	if msg.SenderActorID == "" {
		return fmt.Errorf("sender_actor_id is required")
	}

	query := `
		INSERT INTO messages (
			message_id,
			subject_id,
			sender_actor_id,
			content,
			read_aloud,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		msg.MessageID,
		msg.SubjectID,
		msg.SenderActorID,
		msg.Content,
		msg.ReadAloud,
		msg.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// MarkMessageRead 标记消息已读
// 单向迁移：只有 read_at IS NULL 时才更新；重复调用是 no-op
// 返回值表示本次调用是否真正发生了迁移
func (r *MessagesRepository) MarkMessageRead(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, fmt.Errorf("message_id is required")
	}

	query := `
		UPDATE messages
		SET read_at = $1
		WHERE message_id = $2
		  AND read_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, time.Now(), messageID)
	if err != nil {
		return false, fmt.Errorf("failed to mark message read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListMessages 查询一个被照护者的消息（按最近时间排序，支持分页）
func (r *MessagesRepository) ListMessages(ctx context.Context, subjectID string, page, size int) ([]*models.Message, int, error) {
	if subjectID == "" {
		return []*models.Message{}, 0, nil
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE subject_id = $1`,
		subjectID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := `
		SELECT
			message_id,
			subject_id,
			sender_actor_id,
			content,
			read_aloud,
			created_at,
			read_at
		FROM messages
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID, size, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		var msg models.Message
		var readAt sql.NullTime

		err := rows.Scan(
			&msg.MessageID,
			&msg.SubjectID,
			&msg.SenderActorID,
			&msg.Content,
			&msg.ReadAloud,
			&msg.CreatedAt,
			&readAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}

		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, total, nil
}
