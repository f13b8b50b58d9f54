package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueNotifications is the Redis list key for "new recording" messages.
	QueueNotifications = "recsync:notifications"
	// QueueDLQ keeps notifications whose delivery failed, for inspection only; they are never replayed.
	QueueDLQ = "recsync:notifications:dlq"
	// PollTimeout bounds one blocking pop so shutdown is noticed.
	PollTimeout = 5 * time.Second
	// RetryBackoff is the pause after a Redis error.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeNotification JobType = "recording_notification"
)

// NotificationPayload tells one user that a recording is available.
type NotificationPayload struct {
	UserID    int64     `json:"userid"`
	CourseID  int64     `json:"courseid"`
	MeetingID uuid.UUID `json:"meetingid"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Topic     string    `json:"topic"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// NewNotificationJob wraps a payload in a job envelope.
func NewNotificationJob(payload NotificationPayload) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      JobTypeNotification,
		Payload:   body,
		CreatedAt: time.Now(),
	}, nil
}

// EnqueueNotification enqueues a notification job.
func (q *Queue) EnqueueNotification(ctx context.Context, payload NotificationPayload) error {
	job, err := NewNotificationJob(payload)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueNotifications, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued notification job", zap.String("job_id", job.ID), zap.Int64("user_id", payload.UserID),
		zap.String("recording_id", payload.MeetingID.String()))
	return nil
}

// Dequeue waits up to PollTimeout for a job. Returns nil, nil when none arrived.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, PollTimeout, QueueNotifications).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// DeadLetter parks a failed job.
func (q *Queue) DeadLetter(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
		q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
		return err
	}
	q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID))
	return nil
}
