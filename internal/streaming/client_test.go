package streaming

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func setupTestServer(t *testing.T, status int, body string) (*Client, *http.Request) {
	t.Helper()
	captured := &http.Request{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		*captured = *r
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "stream-key", 5*time.Second, nil), captured
}

func TestUploadReturnsAssetID(t *testing.T) {
	c, req := setupTestServer(t, http.StatusOK, `{"streamid": 42}`)
	id, err := c.Upload(context.Background(), Upload{Topic: "Algebra", DownloadURL: "https://x/y.mp4", Tags: []string{"Math"}})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
	if req.Header.Get("Authorization") != "Bearer stream-key" {
		t.Fatalf("missing bearer key, got %q", req.Header.Get("Authorization"))
	}
	if req.FormValue("downloadurl") != "https://x/y.mp4" || req.FormValue("tags") != `["Math"]` {
		t.Fatalf("unexpected form %v", req.MultipartForm.Value)
	}
}

func TestUploadAcceptsQuotedAssetID(t *testing.T) {
	c, _ := setupTestServer(t, http.StatusOK, `{"streamid": "77"}`)
	id, err := c.Upload(context.Background(), Upload{Topic: "t"})
	if err != nil || id != 77 {
		t.Fatalf("Upload = %d, %v", id, err)
	}
}

func TestUploadWithoutAssetFails(t *testing.T) {
	c, _ := setupTestServer(t, http.StatusOK, `{"error": "bad video"}`)
	if _, err := c.Upload(context.Background(), Upload{Topic: "t"}); !errors.Is(err, ErrNoAsset) {
		t.Fatalf("expected ErrNoAsset, got %v", err)
	}
}

func TestUploadHTTPErrorFails(t *testing.T) {
	c, _ := setupTestServer(t, http.StatusInternalServerError, `oops`)
	if _, err := c.Upload(context.Background(), Upload{Topic: "t"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWatchURL(t *testing.T) {
	c := NewClient("https://stream.example.com/", "k", 0, nil)
	if got := c.WatchURL(42); got != "https://stream.example.com/watch/42" {
		t.Fatalf("WatchURL = %s", got)
	}
}
