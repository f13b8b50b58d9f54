// Package platform defines the capability interface every meeting vendor adapter
// implements, plus the shared plumbing the adapters use.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/models"
)

// MaxPages caps every cursor loop so a vendor bug cannot spin a sweep forever.
const MaxPages = 500

var (
	// ErrNoDownloadURL means the stored payload carries no fetchable video link.
	ErrNoDownloadURL = errors.New("no download url")
	// ErrCourseNotFound is a definitive resolution miss; the embed stage stops retrying the row.
	ErrCourseNotFound = errors.New("course not found")
)

// Window is the discovery lookback.
type Window struct {
	From time.Time
	To   time.Time
	Days int
}

// NewWindow returns a window ending at now and reaching back days days.
func NewWindow(now time.Time, days int) Window {
	return Window{From: now.AddDate(0, 0, -days), To: now, Days: days}
}

// Discovery is one listing result. Recording may be nil when only captions were found.
type Discovery struct {
	Recording *models.Recording
	Captions  []models.ClosedCaption
	// Mutable rows get their times and payloads refreshed when seen again.
	Mutable bool
}

// Download describes where the streaming host should fetch the video from.
type Download struct {
	URL       string
	SizeBytes int64
	FileType  string
}

// Resolution is the course placement derived from vendor metadata.
type Resolution struct {
	CourseID int64
	// Activity is the destination the new module is placed next to; nil when unknown.
	Activity *coursehost.Activity
	// SectionName, when set, places the module in that named section instead.
	SectionName string
}

// Adapter is implemented once per vendor.
type Adapter interface {
	Platform() models.Platform
	ListRecordings(ctx context.Context, w Window) ([]Discovery, error)
	DownloadDescriptor(ctx context.Context, rec *models.Recording) (Download, error)
	PlaybackURL(rec *models.Recording) string
	// ResolveCourse returns nil, nil when the vendor metadata names no course.
	ResolveCourse(ctx context.Context, rec *models.Recording) (*Resolution, error)
	RefreshAuth(ctx context.Context) error
}

// Deleter removes the vendor copy of a recording.
type Deleter interface {
	DeleteRecording(ctx context.Context, rec *models.Recording) error
}

// Recoverer restores or re-fetches a recording on the vendor side before it is re-queued.
// It may rewrite rec's payload fields.
type Recoverer interface {
	Recover(ctx context.Context, rec *models.Recording) error
}

// Collector adapters embed into a single per-course collection module.
type Collector interface {
	CollectionMode() bool
}
