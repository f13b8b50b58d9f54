package unicko

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/coursehost/coursehosttest"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type testServer struct {
	adapter *Adapter
	pages   *int
	deleted *[]string
}

func setupTestServer(t *testing.T, host coursehost.Host) testServer {
	t.Helper()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	pages := 0
	var deleted []string
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/recordings", func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		pages++
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, map[string]any{
				"items": []map[string]any{
					{"id": "r1", "meeting": "m1", "start_time": "2024-03-10T09:00:00Z", "end_time": "2024-03-10T10:00:00Z", "download_url": "https://unicko.test/r1.mp4"},
				},
				"paging": map[string]any{"next": srv.URL + "/recordings?cursor=2&page_size=100&order=desc"},
			})
			return
		}
		writeJSON(w, map[string]any{
			"items": []map[string]any{
				{"id": "r2", "meeting": "m1", "start_time": "2024-03-01T09:00:00Z", "end_time": "2024-03-01T10:00:00Z"},
			},
			"paging": map[string]any{"next": srv.URL + "/recordings?cursor=3"},
		})
	})
	mux.HandleFunc("/meetings/m1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"name": "Statistics", "ext_id": "88"})
	})
	mux.HandleFunc("/recordings/r1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		deleted = append(deleted, "r1")
		w.WriteHeader(http.StatusNoContent)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := New(Config{Key: "key", Secret: "secret", APIURL: srv.URL, Timeout: 5 * time.Second}, host, nil)
	a.now = func() time.Time { return now }
	return testServer{adapter: a, pages: &pages, deleted: &deleted}
}

func TestListRecordingsStopsPastWindow(t *testing.T) {
	host := coursehosttest.New()
	host.AddActivity("lti", "id", "88", coursehost.Activity{CMID: 3, CourseID: 12})
	host.Teachers[12] = []coursehost.User{{ID: 4, Email: "Prof@School.test"}}
	ts := setupTestServer(t, host)

	found, err := ts.adapter.ListRecordings(context.Background(), platform.Window{Days: 2})
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}
	if *ts.pages != 2 {
		t.Fatalf("fetched %d pages, want 2", *ts.pages)
	}
	if len(found) != 1 {
		t.Fatalf("want 1 discovery, got %d", len(found))
	}
	d := found[0]
	if !d.Mutable {
		t.Fatalf("unicko discoveries must be mutable")
	}
	rec := d.Recording
	if rec.Topic != "Statistics" || rec.Email != "prof@school.test" || rec.Duration != "01:00:00" {
		t.Fatalf("unexpected recording %+v", rec)
	}
	if rec.RecordingValue("instanceid") != "88" {
		t.Fatalf("instance id missing from payload: %s", rec.RecordingData)
	}
	dl, err := ts.adapter.DownloadDescriptor(context.Background(), rec)
	if err != nil || dl.URL != "https://unicko.test/r1.mp4" {
		t.Fatalf("unexpected download %+v, %v", dl, err)
	}
}

func TestResolveCourseMissingInstance(t *testing.T) {
	ts := setupTestServer(t, coursehosttest.New())
	ctx := context.Background()

	res, err := ts.adapter.ResolveCourse(ctx, &models.Recording{RecordingData: `{"instanceid":"404"}`})
	if !errors.Is(err, platform.ErrCourseNotFound) || res != nil {
		t.Fatalf("expected ErrCourseNotFound, got %+v, %v", res, err)
	}
	res, err = ts.adapter.ResolveCourse(ctx, &models.Recording{RecordingData: `{}`})
	if err != nil || res != nil {
		t.Fatalf("expected no resolution, got %+v, %v", res, err)
	}
}

func TestDeleteRecording(t *testing.T) {
	ts := setupTestServer(t, coursehosttest.New())
	if err := ts.adapter.DeleteRecording(context.Background(), &models.Recording{RecordingID: "r1"}); err != nil {
		t.Fatalf("DeleteRecording: %v", err)
	}
	if len(*ts.deleted) != 1 {
		t.Fatalf("delete not sent")
	}
}
