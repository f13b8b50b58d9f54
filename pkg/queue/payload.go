package queue

import (
	"time"

	"github.com/stream-sync/recsync/internal/models"
)

// NotificationFor builds the payload announcing rec to one user of a course.
// Date and time are rendered in loc from the recording start, falling back to its creation time.
func NotificationFor(rec *models.Recording, userID, courseID int64, loc *time.Location) NotificationPayload {
	if loc == nil {
		loc = time.UTC
	}
	at := rec.CreatedAt
	if rec.StartTime != nil {
		at = *rec.StartTime
	}
	at = at.In(loc)
	return NotificationPayload{
		UserID:    userID,
		CourseID:  courseID,
		MeetingID: rec.ID,
		Date:      at.Format("02/01/2006"),
		Time:      at.Format("15:04"),
		Topic:     rec.Topic,
	}
}
