package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stream-sync/recsync/internal/coursehost/coursehosttest"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
	"github.com/stream-sync/recsync/internal/recordings"
	"github.com/stream-sync/recsync/internal/streaming"
	"github.com/stream-sync/recsync/pkg/queue"
)

// memStore keeps rows in insertion order.
type memStore struct {
	mu       sync.Mutex
	rows     []*models.Recording
	captions map[string]models.ClosedCaption
	purged   map[uuid.UUID]time.Time
	// afterGet runs once after the next natural-key read, outside the lock.
	afterGet func()
}

func newMemStore() *memStore {
	return &memStore{captions: make(map[string]models.ClosedCaption), purged: make(map[uuid.UUID]time.Time)}
}

func (s *memStore) find(id uuid.UUID) *models.Recording {
	for _, r := range s.rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *memStore) GetByNaturalKey(_ context.Context, meetingID, recordingID string) (*models.Recording, error) {
	s.mu.Lock()
	var found *models.Recording
	for _, r := range s.rows {
		if r.MeetingID == meetingID && r.RecordingID == recordingID {
			cp := *r
			found = &cp
			break
		}
	}
	hook := s.afterGet
	s.afterGet = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return found, nil
}

func (s *memStore) Insert(_ context.Context, rec *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.MeetingID == rec.MeetingID && r.RecordingID == rec.RecordingID {
			return recordings.ErrDuplicate
		}
	}
	rec.ID = uuid.New()
	rec.CreatedAt = time.Date(2024, 1, 1, 0, 0, len(s.rows), 0, time.UTC)
	cp := *rec
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *memStore) RefreshVendorData(_ context.Context, rec *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(rec.ID)
	if r == nil {
		return errors.New("not found")
	}
	r.StartTime = rec.StartTime
	r.EndTime = rec.EndTime
	r.Duration = rec.Duration
	r.MeetingData = rec.MeetingData
	r.RecordingData = rec.RecordingData
	return nil
}

func (s *memStore) SetEmbedState(_ context.Context, id uuid.UUID, embedded int, courseID, moduleID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(id)
	if r == nil || r.Status != models.StatusReady || r.Embedded != models.EmbedPending {
		return false, nil
	}
	r.Embedded = embedded
	r.CourseID = courseID
	r.ModuleID = moduleID
	return true, nil
}

// setStatus changes a row behind the pipeline's back, as an operator action would.
func (s *memStore) setStatus(id uuid.UUID, st models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.find(id); r != nil {
		r.Status = st
	}
}

func (s *memStore) ListByStatuses(_ context.Context, statuses ...models.Status) ([]models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Recording
	for _, r := range s.rows {
		for _, st := range statuses {
			if r.Status == st {
				out = append(out, *r)
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) ListForEmbed(_ context.Context, limit int) ([]models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Recording
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.rows[i]
		if r.Status == models.StatusReady && r.Embedded == models.EmbedPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) ListReadyBefore(_ context.Context, p models.Platform, cutoff time.Time) ([]models.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Recording
	for _, r := range s.rows {
		if r.Platform != p || r.Status != models.StatusReady || r.PurgedAt != nil {
			continue
		}
		if r.StartTime != nil && r.StartTime.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to models.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(id)
	if r == nil || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (s *memStore) IncrementTries(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.find(id); r != nil {
		r.Tries++
	}
	return nil
}

func (s *memStore) MarkUploaded(_ context.Context, id uuid.UUID, streamID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.find(id)
	if r == nil || r.Status != models.StatusProcessing {
		return false, nil
	}
	r.StreamID = streamID
	r.Status = models.StatusReady
	return true, nil
}

func (s *memStore) MarkPurged(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r := s.find(id); r != nil {
		r.PurgedAt = &at
		s.purged[id] = at
	}
	return nil
}

func (s *memStore) UpsertClosedCaption(_ context.Context, cc *models.ClosedCaption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captions[cc.MeetingID+"|"+cc.UUID] = *cc
	return nil
}

func (s *memStore) GetClosedCaption(_ context.Context, meetingID, sessionUUID string) (*models.ClosedCaption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc, ok := s.captions[meetingID+"|"+sessionUUID]
	if !ok {
		return nil, nil
	}
	return &cc, nil
}

func (s *memStore) all() []models.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Recording, len(s.rows))
	for i, r := range s.rows {
		out[i] = *r
	}
	return out
}

// seed inserts a row as-is.
func (s *memStore) seed(t *testing.T, rec models.Recording) uuid.UUID {
	t.Helper()
	if err := s.Insert(context.Background(), &rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec.ID
}

type fakeUploader struct {
	mu       sync.Mutex
	streamID int64
	err      error
	calls    []streaming.Upload
	onUpload func()
}

func (u *fakeUploader) Upload(_ context.Context, up streaming.Upload) (int64, error) {
	if u.onUpload != nil {
		u.onUpload()
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, up)
	if u.err != nil {
		return 0, u.err
	}
	return u.streamID, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []queue.NotificationPayload
}

func (n *fakeNotifier) EnqueueNotification(_ context.Context, p queue.NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, p)
	return nil
}

type fakeArchiver struct {
	archived []uuid.UUID
	err      error
}

func (a *fakeArchiver) ArchiveRecording(_ context.Context, rec *models.Recording) error {
	a.archived = append(a.archived, rec.ID)
	return a.err
}

// stubAdapter is a configurable vendor.
type stubAdapter struct {
	platform    models.Platform
	discoveries []platform.Discovery
	listErr     error
	downloadErr error
	downloadURL string
	resolution  *platform.Resolution
	resolveErr  error
	collection  bool
	refreshErr  error
	refreshed   int
	deleted     []string
	onResolve   func(*models.Recording)
}

func (s *stubAdapter) Platform() models.Platform { return s.platform }

func (s *stubAdapter) ListRecordings(context.Context, platform.Window) ([]platform.Discovery, error) {
	out := make([]platform.Discovery, len(s.discoveries))
	for i, d := range s.discoveries {
		out[i] = d
		if d.Recording != nil {
			cp := *d.Recording
			out[i].Recording = &cp
		}
		out[i].Captions = append([]models.ClosedCaption(nil), d.Captions...)
	}
	return out, s.listErr
}

func (s *stubAdapter) DownloadDescriptor(context.Context, *models.Recording) (platform.Download, error) {
	if s.downloadErr != nil {
		return platform.Download{}, s.downloadErr
	}
	if s.downloadURL == "" {
		return platform.Download{}, platform.ErrNoDownloadURL
	}
	return platform.Download{URL: s.downloadURL}, nil
}

func (s *stubAdapter) PlaybackURL(rec *models.Recording) string {
	return "https://vendor.test/play/" + rec.RecordingID
}

func (s *stubAdapter) ResolveCourse(_ context.Context, rec *models.Recording) (*platform.Resolution, error) {
	if s.onResolve != nil {
		s.onResolve(rec)
	}
	return s.resolution, s.resolveErr
}

func (s *stubAdapter) RefreshAuth(context.Context) error {
	s.refreshed++
	return s.refreshErr
}

func (s *stubAdapter) CollectionMode() bool { return s.collection }

func (s *stubAdapter) DeleteRecording(_ context.Context, rec *models.Recording) error {
	s.deleted = append(s.deleted, rec.RecordingID)
	return nil
}

type testEnv struct {
	p        *Pipeline
	store    *memStore
	host     *coursehosttest.Fake
	uploader *fakeUploader
	notifier *fakeNotifier
	archiver *fakeArchiver
	adapter  *stubAdapter
}

func setupPipeline(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newMemStore(),
		host:     coursehosttest.New(),
		uploader: &fakeUploader{streamID: 42},
		notifier: &fakeNotifier{},
		archiver: &fakeArchiver{},
		adapter:  &stubAdapter{platform: models.PlatformZoom},
	}
	env.p = New(Deps{
		Store:    env.store,
		Registry: platform.NewRegistry(env.adapter),
		Host:     env.host,
		Uploader: env.uploader,
		Notifier: env.notifier,
		Archiver: env.archiver,
	}, opts, nil)
	env.p.now = func() time.Time { return time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC) }
	return env
}
