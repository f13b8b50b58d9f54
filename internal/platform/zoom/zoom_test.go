package zoom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/coursehost/coursehosttest"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
)

type testServer struct {
	adapter     *Adapter
	tokenCalls  *int32
	recoverPath *string
}

func setupTestServer(t *testing.T, host coursehost.Host) testServer {
	t.Helper()
	var tokenCalls int32
	var recoverPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		if user, pass, ok := r.BasicAuth(); !ok || user != "cid" || pass != "csecret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("grant_type") != "account_credentials" || r.URL.Query().Get("account_id") != "acct" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("/metrics/meetings", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{
			"next_page_token": "",
			"meetings": []map[string]any{
				{"uuid": "sess-abc", "id": 123, "topic": "Algebra", "email": "Teacher@Example.com", "duration": "00:50:00",
					"start_time": "2024-03-01T10:00:00Z", "end_time": "2024-03-01T10:50:00Z", "participants": 12, "has_recording": true},
				{"uuid": "sess-none", "id": 124, "topic": "No rec", "has_recording": false},
			},
		})
	})
	mux.HandleFunc("/meetings/sess-abc/recordings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"uuid": "sess-abc",
			"recording_files": []map[string]any{
				{"id": "555", "file_type": "MP4", "download_url": "https://zoom.test/rec/555", "play_url": "https://zoom.test/play/555", "file_size": 1024},
				{"id": "556", "file_type": "TRANSCRIPT", "download_url": "https://zoom.test/rec/556"},
				{"id": "557", "file_type": "M4A", "download_url": "https://zoom.test/rec/557"},
			},
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/recordings/status") {
			recoverPath = r.RequestURI
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := New(Config{
		AccountID:    "acct",
		ClientID:     "cid",
		ClientSecret: "csecret",
		APIURL:       srv.URL,
		OAuthURL:     srv.URL + "/oauth/token",
		Timeout:      5 * time.Second,
	}, platform.NewTokenCache(), host, nil)
	return testServer{adapter: a, tokenCalls: &tokenCalls, recoverPath: &recoverPath}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestListRecordingsSplitsVideoAndCaptions(t *testing.T) {
	ts := setupTestServer(t, coursehosttest.New())
	found, err := ts.adapter.ListRecordings(context.Background(), platform.NewWindow(time.Now(), 1))
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}
	var recs []*models.Recording
	var captions []models.ClosedCaption
	for _, d := range found {
		if d.Recording != nil {
			recs = append(recs, d.Recording)
		}
		captions = append(captions, d.Captions...)
	}
	if len(recs) != 1 {
		t.Fatalf("want 1 recording, got %d", len(recs))
	}
	rec := recs[0]
	if rec.MeetingID != "123" || rec.RecordingID != "555" || rec.Email != "teacher@example.com" || rec.Participants != 12 {
		t.Fatalf("unexpected recording %+v", rec)
	}
	if rec.StartTime == nil || rec.StartTime.Hour() != 10 {
		t.Fatalf("start time not parsed: %v", rec.StartTime)
	}
	if rec.MeetingValue("uuid") != "sess-abc" {
		t.Fatalf("meeting payload missing uuid: %s", rec.MeetingData)
	}
	if len(captions) != 1 || captions[0].MeetingID != "123" || captions[0].UUID != "sess-abc" {
		t.Fatalf("unexpected captions %+v", captions)
	}
	if n := atomic.LoadInt32(ts.tokenCalls); n != 1 {
		t.Fatalf("token fetched %d times, want 1", n)
	}
}

func TestEncodeUUID(t *testing.T) {
	cases := map[string]string{
		"abc":   "abc",
		"a/b":   "a%2Fb",
		"/ab":   "%252Fab",
		"a//b":  "a%252F%252Fb",
		"abc==": "abc==",
	}
	for in, want := range cases {
		if got := EncodeUUID(in); got != want {
			t.Errorf("EncodeUUID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDownloadDescriptorAddsToken(t *testing.T) {
	ts := setupTestServer(t, coursehosttest.New())
	rec := &models.Recording{RecordingData: `{"download_url":"https://zoom.test/rec/555","file_size":1024,"file_type":"MP4"}`}
	dl, err := ts.adapter.DownloadDescriptor(context.Background(), rec)
	if err != nil {
		t.Fatalf("DownloadDescriptor: %v", err)
	}
	if dl.URL != "https://zoom.test/rec/555?access_token=tok-1" || dl.SizeBytes != 1024 || dl.FileType != "MP4" {
		t.Fatalf("unexpected download %+v", dl)
	}
}

func TestDownloadDescriptorMissingURL(t *testing.T) {
	ts := setupTestServer(t, coursehosttest.New())
	_, err := ts.adapter.DownloadDescriptor(context.Background(), &models.Recording{RecordingData: `{}`})
	if err != platform.ErrNoDownloadURL {
		t.Fatalf("expected ErrNoDownloadURL, got %v", err)
	}
}

func TestResolveCourseByMeetingID(t *testing.T) {
	host := coursehosttest.New()
	host.AddActivity("zoom", "meeting_id", "123", coursehost.Activity{CMID: 9, CourseID: 44, SectionID: 3})
	ts := setupTestServer(t, host)

	res, err := ts.adapter.ResolveCourse(context.Background(), &models.Recording{MeetingID: "123"})
	if err != nil || res == nil || res.CourseID != 44 || res.Activity.CMID != 9 {
		t.Fatalf("unexpected resolution %+v, %v", res, err)
	}
	res, err = ts.adapter.ResolveCourse(context.Background(), &models.Recording{MeetingID: "999"})
	if err != nil || res != nil {
		t.Fatalf("expected no resolution, got %+v, %v", res, err)
	}
}

func TestRecoverUsesSessionUUID(t *testing.T) {
	ts := setupTestServer(t, coursehosttest.New())
	rec := &models.Recording{MeetingID: "123", MeetingData: `{"uuid":"/xy"}`}
	if err := ts.adapter.Recover(context.Background(), rec); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !strings.Contains(*ts.recoverPath, "%252Fxy") {
		t.Fatalf("uuid not double-escaped: %s", *ts.recoverPath)
	}
}

func TestRefreshAuthRefetchesToken(t *testing.T) {
	ts := setupTestServer(t, coursehosttest.New())
	ctx := context.Background()
	if err := ts.adapter.RefreshAuth(ctx); err != nil {
		t.Fatalf("RefreshAuth: %v", err)
	}
	if err := ts.adapter.RefreshAuth(ctx); err != nil {
		t.Fatalf("RefreshAuth: %v", err)
	}
	if n := atomic.LoadInt32(ts.tokenCalls); n != 2 {
		t.Fatalf("token fetched %d times, want 2", n)
	}
}
