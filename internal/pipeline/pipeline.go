// Package pipeline runs the periodic sweeps that move recordings from the meeting
// vendors into courses: listing, upload, embed, cleanup and token refresh.
//
// Every sweep is re-entrant. It reads the current state from the store, acts on each
// row independently and reports success as a bool; a failure on one row or one
// platform is logged and the sweep moves on.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/config"
	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
	"github.com/stream-sync/recsync/internal/streaming"
	"github.com/stream-sync/recsync/pkg/queue"
)

// Store is the recording persistence the sweeps need.
type Store interface {
	GetByNaturalKey(ctx context.Context, meetingID, recordingID string) (*models.Recording, error)
	Insert(ctx context.Context, rec *models.Recording) error
	RefreshVendorData(ctx context.Context, rec *models.Recording) error
	SetEmbedState(ctx context.Context, id uuid.UUID, embedded int, courseID, moduleID int64) (bool, error)
	ListByStatuses(ctx context.Context, statuses ...models.Status) ([]models.Recording, error)
	ListForEmbed(ctx context.Context, limit int) ([]models.Recording, error)
	ListReadyBefore(ctx context.Context, p models.Platform, cutoff time.Time) ([]models.Recording, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.Status) (bool, error)
	IncrementTries(ctx context.Context, id uuid.UUID) error
	MarkUploaded(ctx context.Context, id uuid.UUID, streamID int64) (bool, error)
	MarkPurged(ctx context.Context, id uuid.UUID, at time.Time) error
	UpsertClosedCaption(ctx context.Context, cc *models.ClosedCaption) error
	GetClosedCaption(ctx context.Context, meetingID, sessionUUID string) (*models.ClosedCaption, error)
}

// Uploader hands a video to the streaming host and returns its asset id.
type Uploader interface {
	Upload(ctx context.Context, u streaming.Upload) (int64, error)
}

// Notifier enqueues "new recording" notifications.
type Notifier interface {
	EnqueueNotification(ctx context.Context, p queue.NotificationPayload) error
}

// Archiver snapshots a row before it leaves the active set.
type Archiver interface {
	ArchiveRecording(ctx context.Context, rec *models.Recording) error
}

// Options are the sweep settings derived from configuration.
type Options struct {
	DaysToListing    int
	DaysToCleanup    int
	DirectLink       bool
	HideFromStudents bool
	BasedGrouping    bool
	EmbedAfter       bool
	EmbedBatch       int
	UploadMaxTries   int
	SiteID           int64
	CategoryID       string
	Hostname         string
	Location         *time.Location
	Naming           NameOptions
}

// OptionsFromConfig maps configuration onto sweep options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loc, err := time.LoadLocation(cfg.Pipeline.Timezone)
	if err != nil {
		return Options{}, fmt.Errorf("timezone %q: %w", cfg.Pipeline.Timezone, err)
	}
	hostname := cfg.LMS.URL
	if u, err := url.Parse(cfg.LMS.URL); err == nil && u.Host != "" {
		hostname = u.Scheme + "://" + u.Host
	}
	return Options{
		DaysToListing:    cfg.Pipeline.DaysToListing,
		DaysToCleanup:    cfg.Pipeline.DaysToCleanup,
		DirectLink:       cfg.Pipeline.DirectLink(),
		HideFromStudents: cfg.Pipeline.HideFromStudents,
		BasedGrouping:    cfg.Pipeline.BasedGrouping,
		EmbedAfter:       cfg.Pipeline.EmbedOrder == "after",
		EmbedBatch:       cfg.Pipeline.EmbedBatch,
		UploadMaxTries:   cfg.Pipeline.UploadMaxTries,
		SiteID:           cfg.LMS.SiteID,
		CategoryID:       cfg.Stream.CategoryID,
		Hostname:         hostname,
		Location:         loc,
		Naming: NameOptions{
			Prefix:           cfg.Module.Prefix,
			AddDate:          cfg.Module.AddDate,
			HideTopic:        cfg.Module.HideTopic,
			AddRecordingType: cfg.Module.AddRecordingType,
		},
	}, nil
}

// Deps are the collaborators of a Pipeline. Archiver may be nil.
type Deps struct {
	Store    Store
	Registry *platform.Registry
	Host     coursehost.Host
	Uploader Uploader
	Notifier Notifier
	Archiver Archiver
}

// Pipeline holds the sweeps.
type Pipeline struct {
	store    Store
	registry *platform.Registry
	host     coursehost.Host
	uploader Uploader
	notifier Notifier
	archiver Archiver
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = 100
	}
	if opts.UploadMaxTries <= 0 {
		opts.UploadMaxTries = 3
	}
	return &Pipeline{
		store:    deps.Store,
		registry: deps.Registry,
		host:     deps.Host,
		uploader: deps.Uploader,
		notifier: deps.Notifier,
		archiver: deps.Archiver,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Job names accepted by Job.
const (
	JobListing      = "listing"
	JobUpload       = "upload"
	JobEmbed        = "embed"
	JobCleanup      = "cleanup"
	JobRefreshToken = "refresh_token"
)

// JobNames lists every sweep in schedule order.
var JobNames = []string{JobListing, JobUpload, JobEmbed, JobCleanup, JobRefreshToken}

// Job returns the sweep registered under name.
func (p *Pipeline) Job(name string) (func(context.Context) bool, bool) {
	switch name {
	case JobListing:
		return p.Listing, true
	case JobUpload:
		return p.Upload, true
	case JobEmbed:
		return p.Embed, true
	case JobCleanup:
		return p.Cleanup, true
	case JobRefreshToken:
		return p.RefreshTokens, true
	}
	return nil, false
}

func (p *Pipeline) adapter(rec *models.Recording) (platform.Adapter, bool) {
	a, ok := p.registry.Get(rec.Platform)
	if !ok {
		p.logger.Warn("no adapter for recording platform",
			zap.String("recording_id", rec.ID.String()), zap.String("platform", string(rec.Platform)))
	}
	return a, ok
}

// enqueue sends one notification; failures are logged only.
func (p *Pipeline) enqueue(ctx context.Context, rec *models.Recording, userID, courseID int64) {
	payload := queue.NotificationFor(rec, userID, courseID, p.opts.Location)
	if err := p.notifier.EnqueueNotification(ctx, payload); err != nil {
		p.logger.Warn("enqueue notification failed", zap.Error(err),
			zap.String("recording_id", rec.ID.String()), zap.Int64("user_id", userID))
	}
}
