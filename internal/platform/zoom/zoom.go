// Package zoom discovers cloud recordings through the Zoom REST API.
package zoom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
)

const pageSize = "300"

// meeting types queried from the dashboard metrics API; pastOne covers single-participant sessions.
var meetingTypes = []string{"past", "pastOne"}

// Config holds server-to-server OAuth credentials.
type Config struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	APIURL       string
	OAuthURL     string
	Timeout      time.Duration
}

// Adapter implements platform.Adapter for Zoom.
type Adapter struct {
	cfg    Config
	api    *resty.Client
	oauth  *resty.Client
	tokens *platform.TokenCache
	host   coursehost.Host
	logger *zap.Logger
}

// New creates a Zoom adapter.
func New(cfg Config, tokens *platform.TokenCache, host coursehost.Host, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = platform.NewTokenCache()
	}
	return &Adapter{
		cfg:    cfg,
		api:    platform.NewHTTPClient(cfg.APIURL, cfg.Timeout),
		oauth:  platform.NewHTTPClient("", cfg.Timeout),
		tokens: tokens,
		host:   host,
		logger: logger.With(zap.String("platform", "zoom")),
	}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformZoom }

// CollectionMode makes the embed stage append to one collection module per course.
func (a *Adapter) CollectionMode() bool { return true }

func (a *Adapter) scope() string { return "zoom:" + a.cfg.AccountID }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *Adapter) token(ctx context.Context) (string, error) {
	if tok, ok := a.tokens.Get(a.scope()); ok {
		return tok, nil
	}
	var out tokenResponse
	resp, err := a.oauth.R().
		SetContext(ctx).
		SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret).
		SetQueryParams(map[string]string{
			"grant_type": "account_credentials",
			"account_id": a.cfg.AccountID,
		}).
		SetResult(&out).
		Post(a.cfg.OAuthURL)
	if err != nil {
		return "", fmt.Errorf("zoom token: %w", err)
	}
	if resp.StatusCode() != 200 || out.AccessToken == "" {
		return "", platform.StatusError("zoom token", resp)
	}
	a.tokens.Set(a.scope(), out.AccessToken, time.Duration(out.ExpiresIn)*time.Second)
	return out.AccessToken, nil
}

// RefreshAuth drops the cached token and requests a new one.
func (a *Adapter) RefreshAuth(ctx context.Context) error {
	a.tokens.Invalidate(a.scope())
	_, err := a.token(ctx)
	return err
}

type metricsPage struct {
	NextPageToken string            `json:"next_page_token"`
	Meetings      []json.RawMessage `json:"meetings"`
}

type metricsMeeting struct {
	UUID         string `json:"uuid"`
	ID           int64  `json:"id"`
	Topic        string `json:"topic"`
	Email        string `json:"email"`
	Dept         string `json:"dept"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Duration     string `json:"duration"`
	Participants int    `json:"participants"`
	HasRecording bool   `json:"has_recording"`
}

type recordingFile struct {
	ID       string `json:"id"`
	FileType string `json:"file_type"`
	URL      string `json:"download_url"`
}

type meetingRecordings struct {
	UUID  string            `json:"uuid"`
	Files []json.RawMessage `json:"recording_files"`
}

// ListRecordings walks past meetings in the window and collects their MP4 files and captions.
func (a *Adapter) ListRecordings(ctx context.Context, w platform.Window) ([]platform.Discovery, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	var out []platform.Discovery
	seen := make(map[string]bool)
	for _, typ := range meetingTypes {
		next := ""
		for page := 0; page < platform.MaxPages; page++ {
			var res metricsPage
			resp, err := a.api.R().
				SetContext(ctx).
				SetAuthToken(tok).
				SetQueryParams(map[string]string{
					"type":            typ,
					"from":            w.From.UTC().Format("2006-01-02"),
					"to":              w.To.UTC().Format("2006-01-02"),
					"page_size":       pageSize,
					"next_page_token": next,
				}).
				SetResult(&res).
				Get("/metrics/meetings")
			if err != nil {
				return out, fmt.Errorf("zoom list meetings: %w", err)
			}
			if resp.StatusCode() != 200 {
				return out, platform.StatusError("zoom list meetings", resp)
			}
			for _, raw := range res.Meetings {
				var m metricsMeeting
				if err := json.Unmarshal(raw, &m); err != nil {
					a.logger.Warn("skip malformed meeting", zap.Error(err))
					continue
				}
				if !m.HasRecording || seen[m.UUID] {
					continue
				}
				seen[m.UUID] = true
				found, err := a.meetingRecordings(ctx, tok, m, raw)
				if err != nil {
					a.logger.Warn("skip meeting", zap.String("meeting_uuid", m.UUID), zap.Error(err))
					continue
				}
				out = append(out, found...)
			}
			next = res.NextPageToken
			if next == "" {
				break
			}
		}
	}
	return out, nil
}

// EncodeUUID escapes a meeting UUID for a path segment. UUIDs starting with "/"
// or containing "//" must be escaped twice.
func EncodeUUID(uuid string) string {
	escaped := url.PathEscape(uuid)
	if strings.HasPrefix(uuid, "/") || strings.Contains(uuid, "//") {
		escaped = url.PathEscape(escaped)
	}
	return escaped
}

func (a *Adapter) meetingRecordings(ctx context.Context, tok string, m metricsMeeting, meetingRaw json.RawMessage) ([]platform.Discovery, error) {
	var res meetingRecordings
	resp, err := a.api.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetRawPathParam("uuid", EncodeUUID(m.UUID)).
		SetResult(&res).
		Get("/meetings/{uuid}/recordings")
	if err != nil {
		return nil, fmt.Errorf("get recordings: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, platform.StatusError("get recordings", resp)
	}
	meetingID := strconv.FormatInt(m.ID, 10)
	d := platform.Discovery{}
	var out []platform.Discovery
	for _, raw := range res.Files {
		var f recordingFile
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		switch strings.ToUpper(f.FileType) {
		case "CC", "TRANSCRIPT":
			if f.URL != "" {
				d.Captions = append(d.Captions, models.ClosedCaption{MeetingID: meetingID, UUID: m.UUID, DownloadURL: f.URL})
			}
		case "MP4":
			out = append(out, platform.Discovery{Recording: &models.Recording{
				Platform:      models.PlatformZoom,
				MeetingID:     meetingID,
				RecordingID:   f.ID,
				FileID:        f.ID,
				Topic:         m.Topic,
				Email:         strings.ToLower(m.Email),
				Dept:          m.Dept,
				StartTime:     parseTime(m.StartTime),
				EndTime:       parseTime(m.EndTime),
				Duration:      m.Duration,
				Participants:  m.Participants,
				MeetingData:   string(meetingRaw),
				RecordingData: string(raw),
			}})
		}
	}
	if len(d.Captions) > 0 {
		out = append(out, d)
	}
	return out, nil
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

// DownloadDescriptor returns the file's download URL with an access token attached.
func (a *Adapter) DownloadDescriptor(ctx context.Context, rec *models.Recording) (platform.Download, error) {
	raw := rec.RecordingValue("download_url")
	if raw == "" {
		return platform.Download{}, platform.ErrNoDownloadURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return platform.Download{}, fmt.Errorf("parse download url: %w", err)
	}
	if tok, err := a.token(ctx); err == nil {
		q := u.Query()
		q.Set("access_token", tok)
		u.RawQuery = q.Encode()
	} else {
		a.logger.Warn("download url without token", zap.Error(err))
	}
	size, _ := strconv.ParseInt(rec.RecordingValue("file_size"), 10, 64)
	return platform.Download{URL: u.String(), SizeBytes: size, FileType: rec.RecordingValue("file_type")}, nil
}

func (a *Adapter) PlaybackURL(rec *models.Recording) string {
	return rec.RecordingValue("play_url")
}

// ResolveCourse finds the Zoom activity scheduled for this meeting.
func (a *Adapter) ResolveCourse(ctx context.Context, rec *models.Recording) (*platform.Resolution, error) {
	act, err := a.host.FindActivity(ctx, coursehost.ActivityQuery{ModName: "zoom", Field: "meeting_id", Value: rec.MeetingID})
	if err != nil {
		return nil, err
	}
	if act == nil {
		return nil, nil
	}
	return &platform.Resolution{CourseID: act.CourseID, Activity: act}, nil
}

// Recover asks Zoom to restore a trashed recording.
func (a *Adapter) Recover(ctx context.Context, rec *models.Recording) error {
	tok, err := a.token(ctx)
	if err != nil {
		return err
	}
	id := rec.MeetingValue("uuid")
	if id == "" {
		id = rec.MeetingID
	}
	resp, err := a.api.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetRawPathParam("uuid", EncodeUUID(id)).
		SetBody(map[string]string{"action": "recover"}).
		Put("/meetings/{uuid}/recordings/status")
	if err != nil {
		return fmt.Errorf("zoom recover: %w", err)
	}
	if resp.StatusCode() != 204 && resp.StatusCode() != 200 {
		return platform.StatusError("zoom recover", resp)
	}
	return nil
}
