package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Platform identifies the meeting vendor a recording was discovered on.
type Platform string

const (
	PlatformZoom   Platform = "zoom"
	PlatformWebex  Platform = "webex"
	PlatformTeams  Platform = "teams"
	PlatformUnicko Platform = "unicko"
)

// Label is the bracketed vendor name used in upload descriptions.
func (p Platform) Label() string {
	switch p {
	case PlatformZoom:
		return "Zoom"
	case PlatformWebex:
		return "Webex"
	case PlatformTeams:
		return "Teams"
	case PlatformUnicko:
		return "Unicko"
	}
	return string(p)
}

// Status is the pipeline lifecycle of a recording row.
type Status int

const (
	StatusQueued     Status = 0
	StatusProcessing Status = 1
	StatusReady      Status = 2
	StatusDeleted    Status = 5
	StatusInvalid    Status = 6
	StatusArchived   Status = 7
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusProcessing:
		return "processing"
	case StatusReady:
		return "ready"
	case StatusDeleted:
		return "deleted"
	case StatusInvalid:
		return "invalid"
	case StatusArchived:
		return "archived"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus accepts either the name or the numeric code.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "0":
		return StatusQueued, nil
	case "processing", "1":
		return StatusProcessing, nil
	case "ready", "2":
		return StatusReady, nil
	case "deleted", "5":
		return StatusDeleted, nil
	case "invalid", "6":
		return StatusInvalid, nil
	case "archived", "7":
		return StatusArchived, nil
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// Embed outcome codes stored in Recording.Embedded.
const (
	EmbedPending    = 0
	EmbedDone       = 1
	EmbedNoCourse   = 2
	EmbedSuppressed = 5
)

// Recording is one discovered meeting recording and its pipeline state.
type Recording struct {
	ID            uuid.UUID  `json:"id"`
	Platform      Platform   `json:"platform"`
	MeetingID     string     `json:"meeting_id"`
	RecordingID   string     `json:"recording_id"`
	FileID        string     `json:"file_id,omitempty"`
	Topic         string     `json:"topic"`
	Email         string     `json:"email"`
	Dept          string     `json:"dept,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Duration      string     `json:"duration,omitempty"`
	Participants  int        `json:"participants"`
	MeetingData   string     `json:"meeting_data,omitempty"`
	RecordingData string     `json:"recording_data,omitempty"`
	Status        Status     `json:"status"`
	Tries         int        `json:"tries"`
	Embedded      int        `json:"embedded"`
	Visible       bool       `json:"visible"`
	StreamID      int64      `json:"stream_id"`
	CourseID      int64      `json:"course_id"`
	ModuleID      int64      `json:"module_id"`
	PurgedAt      *time.Time `json:"purged_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// MeetingValue returns a top-level string field of MeetingData, or "".
func (r *Recording) MeetingValue(key string) string {
	return blobValue(r.MeetingData, key)
}

// RecordingValue returns a top-level string field of RecordingData, or "".
// Dotted keys walk nested objects.
func (r *Recording) RecordingValue(key string) string {
	return blobValue(r.RecordingData, key)
}

func blobValue(blob, key string) string {
	if blob == "" {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return ""
	}
	parts := strings.Split(key, ".")
	var cur any = m
	for _, p := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[p]
	}
	switch v := cur.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	return ""
}

// ClosedCaption is a caption or transcript file belonging to a meeting session.
type ClosedCaption struct {
	ID          uuid.UUID `json:"id"`
	MeetingID   string    `json:"meeting_id"`
	UUID        string    `json:"uuid"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// FormatDuration renders seconds as HH:MM:SS.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
