package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationLogStatus for delivery.
const (
	NotificationStatusSent   = "sent"
	NotificationStatusFailed = "failed"
)

// NotificationLog records one "new recording" message delivery attempt.
type NotificationLog struct {
	ID           uuid.UUID  `json:"id"`
	RecordingID  *uuid.UUID `json:"recording_id,omitempty"`
	UserID       int64      `json:"user_id"`
	CourseID     int64      `json:"course_id"`
	Subject      string     `json:"subject,omitempty"`
	Status       string     `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
