package recordings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
	"github.com/stream-sync/recsync/pkg/queue"
	"github.com/stream-sync/recsync/pkg/storage"
)

var (
	ErrNotFound          = errors.New("recording not found")
	ErrInvalidTransition = errors.New("action not allowed in current state")
	ErrUnsupported       = errors.New("action not supported")
)

// Store is the persistence the operator actions need.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	List(ctx context.Context, f ListFilter) ([]models.Recording, error)
	Update(ctx context.Context, rec *models.Recording) error
}

// Notifier enqueues "new recording" notifications.
type Notifier interface {
	EnqueueNotification(ctx context.Context, p queue.NotificationPayload) error
}

// Archive serves row snapshots written by the cleanup sweep.
type Archive interface {
	Exists(ctx context.Context, key string) (bool, error)
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// Streams builds viewer links for uploaded assets.
type Streams interface {
	WatchURL(streamID int64) string
}

// ServiceDeps are the collaborators of a Service. Archive may be nil.
type ServiceDeps struct {
	Store    Store
	Registry *platform.Registry
	Host     coursehost.Host
	Notifier Notifier
	Archive  Archive
	Streams  Streams
}

// Service implements the operator actions on recordings.
type Service struct {
	store      Store
	registry   *platform.Registry
	host       coursehost.Host
	notifier   Notifier
	archive    Archive
	streams    Streams
	directLink bool
	loc        *time.Location
	logger     *zap.Logger
}

// NewService creates a Service. directLink selects the status a recovered row restarts from.
func NewService(deps ServiceDeps, directLink bool, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:      deps.Store,
		registry:   deps.Registry,
		host:       deps.Host,
		notifier:   deps.Notifier,
		archive:    deps.Archive,
		streams:    deps.Streams,
		directLink: directLink,
		loc:        loc,
		logger:     logger,
	}
}

// Get returns one recording.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// List returns recordings matching f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Recording, error) {
	return s.store.List(ctx, f)
}

// Delete detaches the course module and marks the row DELETED; cleanup archives it later.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == models.StatusDeleted || rec.Status == models.StatusArchived {
		return nil, ErrInvalidTransition
	}
	if rec.ModuleID > 0 {
		if err := s.host.DeleteModule(ctx, rec.ModuleID); err != nil {
			return nil, fmt.Errorf("delete module %d: %w", rec.ModuleID, err)
		}
		rec.ModuleID = 0
	}
	rec.Status = models.StatusDeleted
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("recording deleted", zap.String("recording_id", rec.ID.String()))
	return rec, nil
}

// SetVisibility shows or hides the recording for students. Showing an embedded
// recording in a visible course notifies its enrolled users.
func (s *Service) SetVisibility(ctx context.Context, id uuid.UUID, visible bool) (*models.Recording, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Visible == visible {
		return rec, nil
	}
	if rec.ModuleID > 0 {
		if err := s.host.SetModuleVisibility(ctx, rec.ModuleID, visible); err != nil {
			return nil, fmt.Errorf("set module visibility: %w", err)
		}
	}
	rec.Visible = visible
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	if visible && rec.ModuleID > 0 && rec.CourseID > 0 {
		s.notifyCourse(ctx, rec)
	}
	return rec, nil
}

func (s *Service) notifyCourse(ctx context.Context, rec *models.Recording) {
	course, err := s.host.GetCourse(ctx, rec.CourseID)
	if err != nil || course == nil || !course.Visible {
		return
	}
	users, err := s.host.EnrolledUsers(ctx, course.ID)
	if err != nil {
		s.logger.Warn("enrolled users failed", zap.Int64("course_id", course.ID), zap.Error(err))
		return
	}
	for _, u := range users {
		p := queue.NotificationFor(rec, u.ID, course.ID, s.loc)
		if err := s.notifier.EnqueueNotification(ctx, p); err != nil {
			s.logger.Warn("enqueue notification failed", zap.Int64("user_id", u.ID), zap.Error(err))
		}
	}
}

// Recover asks the vendor to restore the recording, detaches any module and restarts the pipeline for the row.
func (s *Service) Recover(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a, ok := s.registry.Get(rec.Platform)
	if !ok {
		return nil, ErrUnsupported
	}
	r, ok := a.(platform.Recoverer)
	if !ok {
		return nil, ErrUnsupported
	}
	if err := r.Recover(ctx, rec); err != nil {
		return nil, fmt.Errorf("recover on %s: %w", rec.Platform, err)
	}
	if rec.ModuleID > 0 {
		if err := s.host.DeleteModule(ctx, rec.ModuleID); err != nil {
			s.logger.Warn("delete module on recover failed", zap.Int64("cmid", rec.ModuleID), zap.Error(err))
		}
	}
	rec.Status = models.StatusQueued
	if s.directLink {
		rec.Status = models.StatusReady
	}
	rec.StreamID = 0
	rec.Embedded = models.EmbedPending
	rec.Tries = 0
	rec.ModuleID = 0
	rec.PurgedAt = nil
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("recording recovered", zap.String("recording_id", rec.ID.String()))
	return rec, nil
}

// DownloadURL returns where an operator can watch the recording.
func (s *Service) DownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.StreamID > 0 && s.streams != nil {
		return s.streams.WatchURL(rec.StreamID), nil
	}
	if a, ok := s.registry.Get(rec.Platform); ok {
		if u := a.PlaybackURL(rec); u != "" {
			return u, nil
		}
	}
	return "", platform.ErrNoDownloadURL
}

// AssignCourse sets the destination course of a recording that is not embedded yet.
func (s *Service) AssignCourse(ctx context.Context, id uuid.UUID, courseID int64) (*models.Recording, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Embedded == models.EmbedDone {
		return nil, ErrInvalidTransition
	}
	course, err := s.host.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, platform.ErrCourseNotFound
	}
	rec.CourseID = course.ID
	rec.Embedded = models.EmbedPending
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ArchiveURL returns a pre-signed link to the snapshot of an archived row.
func (s *Service) ArchiveURL(ctx context.Context, id uuid.UUID) (string, error) {
	if s.archive == nil {
		return "", ErrUnsupported
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	key := storage.ArchiveKey(rec)
	ok, err := s.archive.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	return s.archive.PresignedDownloadURL(ctx, key)
}
