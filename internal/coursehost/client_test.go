package coursehost

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// setupTestHost serves canned web service replies keyed by wsfunction.
func setupTestHost(t *testing.T, replies map[string]any) (*Client, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.URL.Path != restPath {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.PostForm.Get("wstoken") != "secret" {
			t.Fatalf("missing token")
		}
		fn := r.PostForm.Get("wsfunction")
		calls = append(calls, fn+"?"+r.PostForm.Encode())
		reply, ok := replies[fn]
		if !ok {
			t.Fatalf("unexpected function %s", fn)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", 5*time.Second, nil), &calls
}

func TestGetCourseMapsVisibility(t *testing.T) {
	c, _ := setupTestHost(t, map[string]any{
		"core_course_get_courses_by_field": map[string]any{
			"courses": []map[string]any{{"id": 7, "fullname": "Physics", "categoryid": 3, "visible": 1}},
		},
	})
	course, err := c.GetCourse(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetCourse: %v", err)
	}
	if course == nil || course.FullName != "Physics" || !course.Visible || course.CategoryID != 3 {
		t.Fatalf("unexpected course %+v", course)
	}
}

func TestCallSurfacesWebServiceException(t *testing.T) {
	c, _ := setupTestHost(t, map[string]any{
		"core_course_delete_modules": map[string]any{
			"exception": "moodle_exception", "errorcode": "invalidrecord", "message": "Can't find data record",
		},
	})
	err := c.DeleteModule(context.Background(), 99)
	if err == nil || !strings.Contains(err.Error(), "invalidrecord") {
		t.Fatalf("expected exception error, got %v", err)
	}
}

func TestFindActivityNoMatchReturnsNil(t *testing.T) {
	c, calls := setupTestHost(t, map[string]any{
		"local_recsync_find_activity": map[string]any{"cmid": 0},
	})
	act, err := c.FindActivity(context.Background(), ActivityQuery{ModName: "zoom", Field: "meeting_id", Value: "123"})
	if err != nil {
		t.Fatalf("FindActivity: %v", err)
	}
	if act != nil {
		t.Fatalf("expected nil activity, got %+v", act)
	}
	if len(*calls) != 1 || !strings.Contains((*calls)[0], "value=123") {
		t.Fatalf("unexpected calls %v", *calls)
	}
}

func TestCategoryPathWalksParents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		cats := map[string]map[string]any{
			"1": {"id": 1, "name": "Science", "path": "/1"},
			"4": {"id": 4, "name": "Physics", "path": "/1/4"},
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{cats[r.PostForm.Get("criteria[0][value]")]})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "secret", time.Second, nil)
	names, err := c.CategoryPath(context.Background(), 4)
	if err != nil {
		t.Fatalf("CategoryPath: %v", err)
	}
	if strings.Join(names, "/") != "Science/Physics" {
		t.Fatalf("unexpected path %v", names)
	}
}

func TestCourseTeachersFiltersRole(t *testing.T) {
	c, _ := setupTestHost(t, map[string]any{
		"core_enrol_get_enrolled_users": []map[string]any{
			{"id": 1, "email": "student@example.com", "roles": []map[string]any{{"roleid": 5, "shortname": "student"}}},
			{"id": 2, "email": "teacher@example.com", "roles": []map[string]any{{"roleid": 3, "shortname": "editingteacher"}}},
		},
	})
	users, err := c.CourseTeachers(context.Background(), 7)
	if err != nil {
		t.Fatalf("CourseTeachers: %v", err)
	}
	if len(users) != 1 || users[0].Email != "teacher@example.com" {
		t.Fatalf("unexpected teachers %+v", users)
	}
}

func TestCourseURL(t *testing.T) {
	c := NewClient("https://lms.example.com/", "x", 0, nil)
	if got := c.CourseURL(12); got != "https://lms.example.com/course/view.php?id=12" {
		t.Fatalf("CourseURL = %s", got)
	}
}
