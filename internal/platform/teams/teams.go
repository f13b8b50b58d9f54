// Package teams discovers Teams meeting recordings stored in OneDrive through Microsoft Graph.
package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"

	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
)

const graphScope = "https://graph.microsoft.com/.default"

// Config holds Azure AD app credentials.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// OwnerMarker selects group owners whose mail contains it.
	OwnerMarker string
	// UsersFilter, when non-empty, further restricts owners to these addresses.
	UsersFilter []string
	GraphURL    string
	LoginURL    string
	Timeout     time.Duration
}

// Adapter implements platform.Adapter for Microsoft Teams.
type Adapter struct {
	cfg    Config
	graph  *resty.Client
	login  *resty.Client
	tokens *platform.TokenCache
	host   coursehost.Host
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Teams adapter.
func New(cfg Config, tokens *platform.TokenCache, host coursehost.Host, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokens == nil {
		tokens = platform.NewTokenCache()
	}
	return &Adapter{
		cfg:    cfg,
		graph:  platform.NewHTTPClient(cfg.GraphURL, cfg.Timeout),
		login:  platform.NewHTTPClient(cfg.LoginURL, cfg.Timeout),
		tokens: tokens,
		host:   host,
		logger: logger.With(zap.String("platform", "teams")),
		now:    time.Now,
	}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformTeams }

func (a *Adapter) scope() string { return "teams:" + a.cfg.TenantID }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *Adapter) token(ctx context.Context) (string, error) {
	if tok, ok := a.tokens.Get(a.scope()); ok {
		return tok, nil
	}
	var out tokenResponse
	resp, err := a.login.R().
		SetContext(ctx).
		SetPathParam("tenant", a.cfg.TenantID).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     a.cfg.ClientID,
			"client_secret": a.cfg.ClientSecret,
			"scope":         graphScope,
		}).
		SetResult(&out).
		Post("/{tenant}/oauth2/v2.0/token")
	if err != nil {
		return "", fmt.Errorf("teams token: %w", err)
	}
	if resp.StatusCode() != 200 || out.AccessToken == "" {
		return "", platform.StatusError("teams token", resp)
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

type page struct {
	Value    []json.RawMessage `json:"value"`
	NextLink string            `json:"@odata.nextLink"`
}

// collection fetches every page of a Graph collection starting at path.
func (a *Adapter) collection(ctx context.Context, tok, path string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	target := path
	for n := 0; n < platform.MaxPages && target != ""; n++ {
		var p page
		resp, err := a.graph.R().
			SetContext(ctx).
			SetAuthToken(tok).
			SetResult(&p).
			Get(target)
		if err != nil {
			return all, fmt.Errorf("graph %s: %w", path, err)
		}
		if resp.StatusCode() != 200 {
			return all, platform.StatusError("graph "+path, resp)
		}
		all = append(all, p.Value...)
		target = p.NextLink
	}
	return all, nil
}

type directoryObject struct {
	ID   string `json:"id"`
	Mail string `json:"mail"`
}

// owners returns the distinct group owners eligible for listing.
func (a *Adapter) owners(ctx context.Context, tok string) ([]string, error) {
	groups, err := a.collection(ctx, tok, "/groups")
	if err != nil {
		return nil, err
	}
	filter := make(map[string]bool, len(a.cfg.UsersFilter))
	for _, u := range a.cfg.UsersFilter {
		filter[strings.ToLower(u)] = true
	}
	marker := strings.ToLower(a.cfg.OwnerMarker)
	seen := make(map[string]bool)
	var out []string
	for _, raw := range groups {
		var g directoryObject
		if json.Unmarshal(raw, &g) != nil || g.ID == "" {
			continue
		}
		owners, err := a.collection(ctx, tok, "/groups/"+g.ID+"/owners")
		if err != nil {
			a.logger.Warn("skip group owners", zap.String("group_id", g.ID), zap.Error(err))
			continue
		}
		for _, oraw := range owners {
			var o directoryObject
			if json.Unmarshal(oraw, &o) != nil || o.Mail == "" {
				continue
			}
			mail := strings.ToLower(o.Mail)
			if marker != "" && !strings.Contains(mail, marker) {
				continue
			}
			if len(filter) > 0 && !filter[mail] {
				continue
			}
			if !seen[mail] {
				seen[mail] = true
				out = append(out, mail)
			}
		}
	}
	return out, nil
}

type driveItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CreatedDateTime string `json:"createdDateTime"`
	WebURL          string `json:"webUrl"`
	DownloadURL     string `json:"@microsoft.graph.downloadUrl"`
	Size            int64  `json:"size"`
	Folder          *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	Source *struct {
		ThreadID string `json:"threadId"`
	} `json:"source"`
	Video *struct {
		Duration int64 `json:"duration"`
	} `json:"video"`
	Media *struct {
		RecordingStartDateTime string `json:"recordingStartDateTime"`
	} `json:"media"`
	CreatedBy struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	} `json:"createdBy"`
}

// ownerVideos walks an owner's drive with an explicit folder worklist and returns mp4 items.
func (a *Adapter) ownerVideos(ctx context.Context, tok, owner string) ([]driveItem, error) {
	stack := []string{"/users/" + owner + "/drive/root/children"}
	var out []driveItem
	for visited := 0; len(stack) > 0 && visited < platform.MaxPages; visited++ {
		path := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		items, err := a.collection(ctx, tok, path)
		if err != nil {
			if visited == 0 {
				return nil, err
			}
			a.logger.Warn("skip folder", zap.String("path", path), zap.Error(err))
			continue
		}
		for _, raw := range items {
			var it driveItem
			if json.Unmarshal(raw, &it) != nil {
				continue
			}
			if it.Folder != nil {
				if it.Folder.ChildCount > 0 {
					stack = append(stack, "/users/"+owner+"/drive/items/"+it.ID+"/children")
				}
				continue
			}
			if it.File != nil && it.File.MimeType == "video/mp4" {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

// ListRecordings lists meeting videos created inside the window from every eligible owner's drive.
func (a *Adapter) ListRecordings(ctx context.Context, w platform.Window) ([]platform.Discovery, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	owners, err := a.owners(ctx, tok)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []platform.Discovery
	for _, owner := range owners {
		items, err := a.ownerVideos(ctx, tok, owner)
		if err != nil {
			a.logger.Warn("skip owner", zap.String("owner", owner), zap.Error(err))
			continue
		}
		for _, it := range items {
			if seen[it.ID] || it.Source == nil || it.Source.ThreadID == "" {
				continue
			}
			created, err := time.Parse(time.RFC3339, it.CreatedDateTime)
			if err != nil || created.Before(w.From) {
				continue
			}
			seen[it.ID] = true
			out = append(out, platform.Discovery{Recording: a.toRecording(it, created)})
		}
	}
	return out, nil
}

type recordingData struct {
	DownloadURL string `json:"download_url"`
	FileID      string `json:"fileid"`
	FileSize    int64  `json:"file_size"`
	PlayURL     string `json:"play_url"`
	ThreadID    string `json:"thread_id"`
	Owner       string `json:"owner"`
}

func (a *Adapter) toRecording(it driveItem, created time.Time) *models.Recording {
	var durationSec int64
	if it.Video != nil {
		durationSec = it.Video.Duration / 1000
	}
	start := created
	if it.Media != nil {
		if t, err := time.Parse(time.RFC3339, it.Media.RecordingStartDateTime); err == nil {
			start = t
		}
	}
	end := start.Add(time.Duration(durationSec) * time.Second)
	data, _ := json.Marshal(recordingData{
		DownloadURL: it.DownloadURL,
		FileID:      it.ID,
		FileSize:    it.Size,
		PlayURL:     it.WebURL,
		ThreadID:    it.Source.ThreadID,
		Owner:       strings.ToLower(it.CreatedBy.User.Email),
	})
	return &models.Recording{
		Platform:      models.PlatformTeams,
		MeetingID:     strconv.FormatInt(created.Unix(), 10),
		RecordingID:   it.ID,
		FileID:        it.ID,
		Topic:         strings.TrimSuffix(it.Name, ".mp4"),
		Email:         strings.ToLower(it.CreatedBy.User.Email),
		StartTime:     &start,
		EndTime:       &end,
		Duration:      models.FormatDuration(durationSec),
		RecordingData: string(data),
	}
}

// DownloadDescriptor fetches a fresh pre-authenticated link; the one captured at discovery expires within the hour.
func (a *Adapter) DownloadDescriptor(ctx context.Context, rec *models.Recording) (platform.Download, error) {
	size, _ := strconv.ParseInt(rec.RecordingValue("file_size"), 10, 64)
	dl := platform.Download{URL: rec.RecordingValue("download_url"), SizeBytes: size, FileType: "video/mp4"}
	owner := rec.RecordingValue("owner")
	if owner == "" {
		owner = rec.Email
	}
	if tok, err := a.token(ctx); err == nil && owner != "" && rec.FileID != "" {
		var it driveItem
		resp, err := a.graph.R().
			SetContext(ctx).
			SetAuthToken(tok).
			SetResult(&it).
			Get("/users/" + owner + "/drive/items/" + rec.FileID)
		if err == nil && resp.StatusCode() == 200 && it.DownloadURL != "" {
			dl.URL = it.DownloadURL
		} else {
			a.logger.Warn("using stored download url", zap.String("file_id", rec.FileID))
		}
	}
	if dl.URL == "" {
		return platform.Download{}, platform.ErrNoDownloadURL
	}
	return dl, nil
}

// PlaybackURL opens the file in the browser viewer.
func (a *Adapter) PlaybackURL(rec *models.Recording) string {
	u := rec.RecordingValue("play_url")
	if u == "" {
		return ""
	}
	return u + "?web=1&csf=1"
}

var threadRe = regexp.MustCompile(`^.*:meeting_([A-Za-z0-9]+)@thread\.v2$`)

// ThreadToken extracts the meeting token from a Teams chat thread id.
func ThreadToken(threadID string) string {
	m := threadRe.FindStringSubmatch(threadID)
	if m == nil {
		return ""
	}
	return m[1]
}

// courseLabels are words that mark the first comma-separated topic part as a course reference.
var courseLabels = []string{"course", "קורס"}

// ParseTopic reads "<course label> <id>, <section name>" from a recording topic.
// courseID is 0 when the first part is not a course reference.
func ParseTopic(topic string) (courseID int64, section string) {
	parts := strings.SplitN(topic, ",", 2)
	if len(parts) == 2 {
		section = strings.TrimSpace(parts[1])
	}
	head := strings.ToLower(parts[0])
	for _, label := range courseLabels {
		if strings.Contains(head, label) {
			digits := strings.Map(func(r rune) rune {
				if r >= '0' && r <= '9' {
					return r
				}
				return -1
			}, head)
			if id, err := strconv.ParseInt(digits, 10, 64); err == nil {
				courseID = id
			}
			break
		}
	}
	return courseID, section
}

// ResolveCourse matches the meeting thread to a Teams activity; a course id in the topic overrides it.
func (a *Adapter) ResolveCourse(ctx context.Context, rec *models.Recording) (*platform.Resolution, error) {
	var res *platform.Resolution
	if token := ThreadToken(rec.RecordingValue("thread_id")); token != "" {
		act, err := a.host.FindActivity(ctx, coursehost.ActivityQuery{ModName: "msteams", Field: "externalurl", Value: token, Like: true})
		if err != nil {
			return nil, err
		}
		if act != nil {
			res = &platform.Resolution{CourseID: act.CourseID, Activity: act}
		}
	}
	courseID, section := ParseTopic(rec.Topic)
	if courseID > 0 {
		res = &platform.Resolution{CourseID: courseID}
	}
	if res != nil {
		res.SectionName = section
	}
	return res, nil
}
