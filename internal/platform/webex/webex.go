// Package webex discovers meeting recordings through the Webex admin API.
package webex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
)

const (
	accessTokenKey  = "webex:access_token"
	refreshTokenKey = "webex:refresh_token"
	cacheScope      = "webex"
	// accessTokenTTL bounds how long this process trusts its cached copy before
	// re-reading the shared store, so rotations by another process are picked up.
	accessTokenTTL = 10 * time.Minute
	pageSize       = "100"
)

// Config holds integration credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	APIURL       string
	Timeout      time.Duration
}

// Adapter implements platform.Adapter for Webex.
type Adapter struct {
	cfg     Config
	api     *resty.Client
	secrets platform.SecretStore
	tokens  *platform.TokenCache
	logger  *zap.Logger
}

// New creates a Webex adapter. secrets holds the rotating access and refresh tokens.
func New(cfg Config, secrets platform.SecretStore, tokens *platform.TokenCache, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = platform.NewTokenCache()
	}
	return &Adapter{
		cfg:     cfg,
		api:     platform.NewHTTPClient(cfg.APIURL, cfg.Timeout),
		secrets: secrets,
		tokens:  tokens,
		logger:  logger.With(zap.String("platform", "webex")),
	}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformWebex }

func (a *Adapter) token(ctx context.Context) (string, error) {
	if tok, ok := a.tokens.Get(cacheScope); ok {
		return tok, nil
	}
	tok, err := a.secrets.Get(ctx, accessTokenKey)
	if err != nil {
		return "", err
	}
	if tok == "" {
		tok = a.cfg.AccessToken
	}
	if tok == "" {
		return "", errors.New("webex access token not set; run the refresh_token job")
	}
	a.tokens.Set(cacheScope, tok, accessTokenTTL)
	return tok, nil
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshAuth exchanges the refresh token for a new access token and stores both.
func (a *Adapter) RefreshAuth(ctx context.Context) error {
	refresh, err := a.secrets.Get(ctx, refreshTokenKey)
	if err != nil {
		return err
	}
	if refresh == "" {
		refresh = a.cfg.RefreshToken
	}
	if refresh == "" {
		return errors.New("webex refresh token not configured")
	}
	var out refreshResponse
	resp, err := a.api.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"client_id":     a.cfg.ClientID,
			"client_secret": a.cfg.ClientSecret,
			"refresh_token": refresh,
		}).
		SetResult(&out).
		Post("/access_token")
	if err != nil {
		return fmt.Errorf("webex refresh: %w", err)
	}
	if resp.StatusCode() != 200 || out.AccessToken == "" {
		return platform.StatusError("webex refresh", resp)
	}
	if err := a.secrets.Set(ctx, accessTokenKey, out.AccessToken); err != nil {
		return err
	}
	if out.RefreshToken != "" && out.RefreshToken != refresh {
		if err := a.secrets.Set(ctx, refreshTokenKey, out.RefreshToken); err != nil {
			return err
		}
	}
	a.tokens.Set(cacheScope, out.AccessToken, accessTokenTTL)
	a.logger.Info("webex access token refreshed", zap.Int("expires_in", out.ExpiresIn))
	return nil
}

type listPage struct {
	Items []json.RawMessage `json:"items"`
}

type listItem struct {
	ID              string `json:"id"`
	MeetingID       string `json:"meetingId"`
	Topic           string `json:"topic"`
	CreateTime      string `json:"createTime"`
	TimeRecorded    string `json:"timeRecorded"`
	HostEmail       string `json:"hostEmail"`
	Format          string `json:"format"`
	DurationSeconds int64  `json:"durationSeconds"`
}

var nextLinkRe = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// nextLink extracts the rel="next" target of a Link header.
func nextLink(header string) string {
	m := nextLinkRe.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

// ListRecordings queries one calendar day at a time across the window. A failing
// day is logged and skipped; the joined day errors come back with everything found.
func (a *Adapter) ListRecordings(ctx context.Context, w platform.Window) ([]platform.Discovery, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	var out []platform.Discovery
	var errs []error
	for day := w.Days; day >= 0; day-- {
		date := w.To.UTC().AddDate(0, 0, -day).Format("2006-01-02")
		found, err := a.listDay(ctx, tok, date)
		out = append(out, found...)
		if err != nil {
			a.logger.Warn("list day failed", zap.String("date", date), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", date, err))
		}
	}
	return out, errors.Join(errs...)
}

func (a *Adapter) listDay(ctx context.Context, tok, date string) ([]platform.Discovery, error) {
	var out []platform.Discovery
	req := a.api.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetQueryParams(map[string]string{
			"from":  date + "T00:00:00",
			"to":    date + "T23:59:00",
			"max":   pageSize,
			"order": "desc",
		})
	target := "/admin/recordings"
	for page := 0; page < platform.MaxPages && target != ""; page++ {
		var res listPage
		resp, err := req.SetResult(&res).Get(target)
		if err != nil {
			return out, fmt.Errorf("webex list recordings: %w", err)
		}
		if resp.StatusCode() != 200 {
			return out, platform.StatusError("webex list recordings", resp)
		}
		for _, raw := range res.Items {
			d, err := a.discover(ctx, tok, raw)
			if err != nil {
				a.logger.Warn("skip recording", zap.Error(err))
				continue
			}
			if d != nil {
				out = append(out, *d)
			}
		}
		target = nextLink(resp.Header().Get("Link"))
		// the next link already carries every query parameter
		req = a.api.R().SetContext(ctx).SetAuthToken(tok)
	}
	return out, nil
}

func (a *Adapter) detail(ctx context.Context, tok, id, hostEmail string) (json.RawMessage, error) {
	var raw json.RawMessage
	resp, err := a.api.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetPathParam("id", id).
		SetQueryParam("hostEmail", hostEmail).
		SetResult(&raw).
		Get("/recordings/{id}")
	if err != nil {
		return nil, fmt.Errorf("webex recording %s: %w", id, err)
	}
	if resp.StatusCode() != 200 {
		return nil, platform.StatusError("webex recording "+id, resp)
	}
	return raw, nil
}

func (a *Adapter) discover(ctx context.Context, tok string, raw json.RawMessage) (*platform.Discovery, error) {
	var item listItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, err
	}
	if !strings.EqualFold(item.Format, "mp4") {
		return nil, nil
	}
	detail, err := a.detail(ctx, tok, item.ID, item.HostEmail)
	if err != nil {
		return nil, err
	}
	var links struct {
		Links *struct {
			RecordingDownloadLink string `json:"recordingDownloadLink"`
		} `json:"temporaryDirectDownloadLinks"`
	}
	if err := json.Unmarshal(detail, &links); err != nil || links.Links == nil {
		return nil, fmt.Errorf("recording %s has no direct download links", item.ID)
	}
	start := parseTime(item.TimeRecorded)
	if start == nil {
		start = parseTime(item.CreateTime)
	}
	var end *time.Time
	if start != nil {
		e := start.Add(time.Duration(item.DurationSeconds) * time.Second)
		end = &e
	}
	return &platform.Discovery{Recording: &models.Recording{
		Platform:      models.PlatformWebex,
		MeetingID:     MeetingSuffix(item.MeetingID),
		RecordingID:   item.ID,
		Topic:         item.Topic,
		Email:         strings.ToLower(item.HostEmail),
		StartTime:     start,
		EndTime:       end,
		Duration:      models.FormatDuration(item.DurationSeconds),
		MeetingData:   string(raw),
		RecordingData: string(detail),
	}}, nil
}

// MeetingSuffix returns the instance id after the last "_" of a Webex meeting id.
func MeetingSuffix(id string) string {
	if i := strings.LastIndex(id, "_"); i >= 0 {
		return id[i+1:]
	}
	return id
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

// DownloadDescriptor returns the temporary direct download link captured at discovery.
func (a *Adapter) DownloadDescriptor(_ context.Context, rec *models.Recording) (platform.Download, error) {
	u := rec.RecordingValue("temporaryDirectDownloadLinks.recordingDownloadLink")
	if u == "" {
		return platform.Download{}, platform.ErrNoDownloadURL
	}
	size, _ := strconv.ParseInt(rec.RecordingValue("sizeBytes"), 10, 64)
	return platform.Download{URL: u, SizeBytes: size, FileType: rec.RecordingValue("format")}, nil
}

func (a *Adapter) PlaybackURL(rec *models.Recording) string {
	return rec.RecordingValue("playbackUrl")
}

// ResolveCourse always defers to a course assigned by an operator.
func (a *Adapter) ResolveCourse(context.Context, *models.Recording) (*platform.Resolution, error) {
	return nil, nil
}

// Recover re-fetches the recording detail; the temporary links in the stored payload expire.
func (a *Adapter) Recover(ctx context.Context, rec *models.Recording) error {
	tok, err := a.token(ctx)
	if err != nil {
		return err
	}
	detail, err := a.detail(ctx, tok, rec.RecordingID, rec.Email)
	if err != nil {
		return err
	}
	rec.RecordingData = string(detail)
	return nil
}
