// Package unicko discovers recordings of Unicko virtual classrooms launched from LTI activities.
package unicko

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
)

const pageSize = "100"

// Config holds API key credentials.
type Config struct {
	Key     string
	Secret  string
	APIURL  string
	Timeout time.Duration
}

// Adapter implements platform.Adapter for Unicko.
type Adapter struct {
	api    *resty.Client
	host   coursehost.Host
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Unicko adapter.
func New(cfg Config, host coursehost.Host, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := platform.NewHTTPClient(cfg.APIURL, cfg.Timeout)
	api.SetBasicAuth(cfg.Key, cfg.Secret)
	return &Adapter{
		api:    api,
		host:   host,
		logger: logger.With(zap.String("platform", "unicko")),
		now:    time.Now,
	}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformUnicko }

// RefreshAuth is a no-op; the API key does not expire.
func (a *Adapter) RefreshAuth(context.Context) error { return nil }

type listPage struct {
	Items  []json.RawMessage `json:"items"`
	Paging *struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type recordingItem struct {
	ID        string `json:"id"`
	Meeting   string `json:"meeting"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type meetingDetails struct {
	Name  string `json:"name"`
	ExtID string `json:"ext_id"`
}

// ListRecordings pages newest first and stops after the first page reaching past the window.
// Known rows are refreshed because their payload changes after discovery.
func (a *Adapter) ListRecordings(ctx context.Context, w platform.Window) ([]platform.Discovery, error) {
	cutoff := a.now().AddDate(0, 0, -(w.Days + 1))
	var out []platform.Discovery
	req := a.api.R().SetContext(ctx).SetQueryParams(map[string]string{"page_size": pageSize, "order": "desc"})
	target := "/recordings"
	for page := 0; page < platform.MaxPages && target != ""; page++ {
		var res listPage
		resp, err := req.SetResult(&res).Get(target)
		if err != nil {
			return out, fmt.Errorf("unicko list recordings: %w", err)
		}
		if resp.StatusCode() != 200 {
			return out, platform.StatusError("unicko list recordings", resp)
		}
		stop := false
		for _, raw := range res.Items {
			var item recordingItem
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			end := parseTime(item.EndTime)
			if end != nil && end.Before(cutoff) {
				stop = true
				continue
			}
			d, err := a.discover(ctx, item, raw)
			if err != nil {
				a.logger.Warn("skip recording", zap.String("recording_id", item.ID), zap.Error(err))
				continue
			}
			out = append(out, d)
		}
		target = ""
		if !stop && res.Paging != nil {
			target = res.Paging.Next
		}
		req = a.api.R().SetContext(ctx)
	}
	return out, nil
}

func (a *Adapter) meeting(ctx context.Context, id string) (*meetingDetails, error) {
	var m meetingDetails
	resp, err := a.api.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&m).
		Get("/meetings/{id}")
	if err != nil {
		return nil, fmt.Errorf("unicko meeting %s: %w", id, err)
	}
	if resp.StatusCode() != 200 {
		return nil, platform.StatusError("unicko meeting "+id, resp)
	}
	return &m, nil
}

// withInstance adds the LTI instance id to the raw recording payload.
func withInstance(raw json.RawMessage, instanceID string) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return string(raw)
	}
	if instanceID != "" {
		m["instanceid"] = instanceID
	}
	out, err := json.Marshal(m)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func (a *Adapter) discover(ctx context.Context, item recordingItem, raw json.RawMessage) (platform.Discovery, error) {
	details, err := a.meeting(ctx, item.Meeting)
	if err != nil {
		return platform.Discovery{}, err
	}
	payload := withInstance(raw, details.ExtID)
	rec := &models.Recording{
		Platform:      models.PlatformUnicko,
		MeetingID:     item.Meeting,
		RecordingID:   item.ID,
		Topic:         details.Name,
		StartTime:     parseTime(item.StartTime),
		EndTime:       parseTime(item.EndTime),
		MeetingData:   payload,
		RecordingData: payload,
	}
	if rec.StartTime != nil && rec.EndTime != nil {
		rec.Duration = models.FormatDuration(int64(rec.EndTime.Sub(*rec.StartTime).Seconds()))
	}
	if details.ExtID != "" {
		rec.Email = a.teacherEmail(ctx, details.ExtID)
	}
	return platform.Discovery{Recording: rec, Mutable: true}, nil
}

// teacherEmail returns the first editing teacher of the course holding the LTI instance.
func (a *Adapter) teacherEmail(ctx context.Context, instanceID string) string {
	act, err := a.host.FindActivity(ctx, coursehost.ActivityQuery{ModName: "lti", Field: "id", Value: instanceID})
	if err != nil || act == nil {
		return ""
	}
	teachers, err := a.host.CourseTeachers(ctx, act.CourseID)
	if err != nil || len(teachers) == 0 {
		return ""
	}
	return strings.ToLower(teachers[0].Email)
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// DownloadDescriptor returns the recording file URL.
func (a *Adapter) DownloadDescriptor(_ context.Context, rec *models.Recording) (platform.Download, error) {
	u := rec.RecordingValue("download_url")
	if u == "" {
		u = rec.RecordingValue("url")
	}
	if u == "" {
		return platform.Download{}, platform.ErrNoDownloadURL
	}
	size, _ := strconv.ParseInt(rec.RecordingValue("size"), 10, 64)
	return platform.Download{URL: u, SizeBytes: size, FileType: "mp4"}, nil
}

func (a *Adapter) PlaybackURL(rec *models.Recording) string {
	return rec.RecordingValue("playback_url")
}

// ResolveCourse maps the stored LTI instance to its activity. An instance that no
// longer exists is a definitive miss.
func (a *Adapter) ResolveCourse(ctx context.Context, rec *models.Recording) (*platform.Resolution, error) {
	instanceID := rec.RecordingValue("instanceid")
	if instanceID == "" {
		return nil, nil
	}
	act, err := a.host.FindActivity(ctx, coursehost.ActivityQuery{ModName: "lti", Field: "id", Value: instanceID})
	if err != nil {
		return nil, err
	}
	if act == nil {
		return nil, platform.ErrCourseNotFound
	}
	return &platform.Resolution{CourseID: act.CourseID, Activity: act}, nil
}

// DeleteRecording removes the recording from Unicko storage.
func (a *Adapter) DeleteRecording(ctx context.Context, rec *models.Recording) error {
	resp, err := a.api.R().
		SetContext(ctx).
		SetPathParam("id", rec.RecordingID).
		Delete("/recordings/{id}")
	if err != nil {
		return fmt.Errorf("unicko delete %s: %w", rec.RecordingID, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return platform.StatusError("unicko delete "+rec.RecordingID, resp)
	}
	return nil
}

// Recover re-reads the meeting so a changed LTI link is picked up.
func (a *Adapter) Recover(ctx context.Context, rec *models.Recording) error {
	details, err := a.meeting(ctx, rec.MeetingID)
	if err != nil {
		return err
	}
	rec.RecordingData = withInstance(json.RawMessage(rec.RecordingData), details.ExtID)
	if details.Name != "" {
		rec.Topic = details.Name
	}
	return nil
}
