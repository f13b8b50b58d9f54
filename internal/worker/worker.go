package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/pkg/queue"
)

// Jobs is the queue side the worker drains.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	DeadLetter(ctx context.Context, job *queue.Job) error
}

// Sender delivers a message through the LMS.
type Sender interface {
	SendMessage(ctx context.Context, m coursehost.Message) error
}

// LogStore records each delivery attempt.
type LogStore interface {
	Create(ctx context.Context, l *models.NotificationLog) error
}

// NotificationProcessor delivers "new recording" notifications. Failed deliveries are logged and parked, never retried.
type NotificationProcessor struct {
	jobs   Jobs
	sender Sender
	logs   LogStore
	logger *zap.Logger
}

// NewNotificationProcessor creates a notification processor.
func NewNotificationProcessor(jobs Jobs, sender Sender, logs LogStore, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{jobs: jobs, sender: sender, logs: logs, logger: logger}
}

// Subject returns the message subject for a recording topic.
func Subject(topic string) string {
	return "New recording: " + topic
}

// Body returns the HTML message body. The vendor topic is escaped.
func Body(p queue.NotificationPayload) string {
	return fmt.Sprintf("We are pleased to inform you that your new recording, with the subject <b>%s</b>, "+
		"dated <u>%s</u> at <u>%s</u>, is now available for viewing on the recordings board.",
		html.EscapeString(p.Topic), html.EscapeString(p.Date), html.EscapeString(p.Time))
}

// Process delivers one notification job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	msg := coursehost.Message{
		ToUserID: payload.UserID,
		CourseID: payload.CourseID,
		Subject:  Subject(payload.Topic),
		HTML:     Body(payload),
	}
	sendErr := p.sender.SendMessage(ctx, msg)

	entry := &models.NotificationLog{
		UserID:   payload.UserID,
		CourseID: payload.CourseID,
		Subject:  msg.Subject,
		Status:   models.NotificationStatusSent,
	}
	if payload.MeetingID != uuid.Nil {
		id := payload.MeetingID
		entry.RecordingID = &id
	}
	if sendErr != nil {
		entry.Status = models.NotificationStatusFailed
		entry.ErrorMessage = sendErr.Error()
	} else {
		now := time.Now()
		entry.SentAt = &now
	}
	if err := p.logs.Create(ctx, entry); err != nil {
		p.logger.Error("notification log write failed", zap.Error(err), zap.String("job_id", job.ID))
	}

	if sendErr != nil {
		return fmt.Errorf("send message: %w", sendErr)
	}
	p.logger.Info("notification sent", zap.String("job_id", job.ID), zap.Int64("user_id", payload.UserID),
		zap.String("recording_id", payload.MeetingID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, park failures.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(queue.RetryBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if dlErr := p.jobs.DeadLetter(ctx, job); dlErr != nil {
				p.logger.Error("dead letter failed", zap.Error(dlErr))
			}
		}
	}
}
