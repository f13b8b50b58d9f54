// Package streaming uploads recordings to the video streaming host.
package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"
)

const uploadPath = "/webservice/api/v1"

// ErrNoAsset means the host accepted the request but returned no asset id.
var ErrNoAsset = errors.New("streaming host returned no asset id")

// Upload is the metadata sent with one video.
type Upload struct {
	Topic         string
	Email         string
	DownloadURL   string
	CaptionURL    string
	CategoryID    string
	Tags          []string
	Description   string
	CourseName    string
	CourseID      int64
	RecordingData string
	MeetingData   string
	Hostname      string
}

// Client posts upload requests; the host fetches the video from DownloadURL itself.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient creates a streaming host client authenticated with a bearer key.
func NewClient(baseURL, key string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")
	http := resty.New()
	http.SetBaseURL(baseURL)
	http.SetTimeout(timeout)
	http.SetAuthToken(key)
	return &Client{http: http, baseURL: baseURL, logger: logger}
}

type uploadResponse struct {
	StreamID json.Number `json:"streamid"`
}

// Upload submits one recording and returns the streaming asset id.
func (c *Client) Upload(ctx context.Context, u Upload) (int64, error) {
	tags, err := json.Marshal(u.Tags)
	if err != nil {
		return 0, fmt.Errorf("marshal tags: %w", err)
	}
	fields := map[string]string{
		"topic":         u.Topic,
		"email":         u.Email,
		"downloadurl":   u.DownloadURL,
		"ccurl":         u.CaptionURL,
		"category":      u.CategoryID,
		"tags":          string(tags),
		"description":   u.Description,
		"coursename":    u.CourseName,
		"courseid":      strconv.FormatInt(u.CourseID, 10),
		"recordingdata": u.RecordingData,
		"meetingdata":   u.MeetingData,
		"hostname":      u.Hostname,
	}
	var out uploadResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(fields).
		SetResult(&out).
		Post(uploadPath)
	if err != nil {
		return 0, fmt.Errorf("upload request: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return 0, fmt.Errorf("upload: status %d: %s", resp.StatusCode(), resp.String())
	}
	id, err := out.StreamID.Int64()
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoAsset, resp.String())
	}
	c.logger.Debug("stream upload accepted", zap.Int64("stream_id", id), zap.String("topic", u.Topic))
	return id, nil
}

// WatchURL is the viewer page of an asset.
func (c *Client) WatchURL(streamID int64) string {
	return fmt.Sprintf("%s/watch/%d", c.baseURL, streamID)
}
