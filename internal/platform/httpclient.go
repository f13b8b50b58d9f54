package platform

import (
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"
)

// DefaultTimeout bounds every vendor call.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient returns a resty client for a vendor API. No retries: a failed
// call is picked up again by the next sweep.
func NewHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	return client
}

// StatusError wraps a non-2xx vendor response with its body, which usually carries the vendor's reason.
func StatusError(op string, resp *resty.Response) error {
	body := resp.String()
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), body)
}
