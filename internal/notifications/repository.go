package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stream-sync/recsync/internal/models"
)

// Repository handles notification_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create stores one delivery attempt.
func (r *Repository) Create(ctx context.Context, l *models.NotificationLog) error {
	const q = `INSERT INTO notification_logs (recording_id, user_id, course_id, subject, status, sent_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	var errMsg *string
	if l.ErrorMessage != "" {
		errMsg = &l.ErrorMessage
	}
	if err := r.pool.QueryRow(ctx, q, l.RecordingID, l.UserID, l.CourseID, l.Subject, l.Status, l.SentAt, errMsg).
		Scan(&l.ID, &l.CreatedAt); err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

// ListByRecording returns notification logs for a recording, newest first.
func (r *Repository) ListByRecording(ctx context.Context, recordingID uuid.UUID) ([]*models.NotificationLog, error) {
	const q = `SELECT id, recording_id, user_id, course_id, subject, status, sent_at, error_message, created_at
		FROM notification_logs
		WHERE recording_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.NotificationLog
	for rows.Next() {
		var l models.NotificationLog
		var subject, errMsg *string
		if err := rows.Scan(&l.ID, &l.RecordingID, &l.UserID, &l.CourseID, &subject, &l.Status, &l.SentAt, &errMsg, &l.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			l.Subject = *subject
		}
		if errMsg != nil {
			l.ErrorMessage = *errMsg
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}
