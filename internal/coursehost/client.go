package coursehost

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"
)

const restPath = "/webservice/rest/server.php"

// editingTeacherRole is the LMS role id of course owners.
const editingTeacherRole = 3

// Client calls the LMS REST web service with a service token.
type Client struct {
	http    *resty.Client
	baseURL string
	token   string
	logger  *zap.Logger
}

// NewClient creates a web service client.
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
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
	return &Client{http: http, baseURL: baseURL, token: token, logger: logger}
}

type wsException struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// call invokes one web service function and decodes the JSON result into out (may be nil).
func (c *Client) call(ctx context.Context, function string, params map[string]string, out any) error {
	form := map[string]string{
		"wstoken":            c.token,
		"wsfunction":         function,
		"moodlewsrestformat": "json",
	}
	for k, v := range params {
		form[k] = v
	}
	c.logger.Debug("lms call", zap.String("function", function))
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(restPath)
	if err != nil {
		return fmt.Errorf("%s: %w", function, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("%s: status %d: %s", function, resp.StatusCode(), resp.String())
	}
	body := []byte(resp.String())
	var exc wsException
	if json.Unmarshal(body, &exc) == nil && exc.Exception != "" {
		return fmt.Errorf("%s: %s: %s", function, exc.ErrorCode, exc.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", function, err)
	}
	return nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// FindActivity looks up one activity via the companion plugin's search function.
func (c *Client) FindActivity(ctx context.Context, q ActivityQuery) (*Activity, error) {
	var out Activity
	err := c.call(ctx, "local_recsync_find_activity", map[string]string{
		"modname": q.ModName,
		"field":   q.Field,
		"value":   q.Value,
		"like":    boolParam(q.Like),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.CMID == 0 {
		return nil, nil
	}
	return &out, nil
}

// GetCourse returns a course by id.
func (c *Client) GetCourse(ctx context.Context, courseID int64) (*Course, error) {
	var out struct {
		Courses []struct {
			Course
			Visible int `json:"visible"`
		} `json:"courses"`
	}
	err := c.call(ctx, "core_course_get_courses_by_field", map[string]string{
		"field": "id",
		"value": itoa(courseID),
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Courses) == 0 {
		return nil, nil
	}
	course := out.Courses[0].Course
	course.Visible = out.Courses[0].Visible == 1
	return &course, nil
}

type category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

func (c *Client) getCategory(ctx context.Context, id int64) (*category, error) {
	var out []category
	err := c.call(ctx, "core_course_get_categories", map[string]string{
		"criteria[0][key]":   "id",
		"criteria[0][value]": itoa(id),
		"addsubcategories":   "0",
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// CategoryPath returns category names from the top level down to categoryID.
func (c *Client) CategoryPath(ctx context.Context, categoryID int64) ([]string, error) {
	leaf, err := c.getCategory(ctx, categoryID)
	if err != nil || leaf == nil {
		return nil, err
	}
	var names []string
	for _, part := range strings.Split(strings.Trim(leaf.Path, "/"), "/") {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		if id == leaf.ID {
			names = append(names, leaf.Name)
			continue
		}
		cat, err := c.getCategory(ctx, id)
		if err != nil {
			return nil, err
		}
		if cat != nil {
			names = append(names, cat.Name)
		}
	}
	return names, nil
}

// CourseTags returns the tag names attached to a course.
func (c *Client) CourseTags(ctx context.Context, courseID int64) ([]string, error) {
	var out []string
	if err := c.call(ctx, "local_recsync_course_tags", map[string]string{"courseid": itoa(courseID)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindSection returns the course section whose name matches case-insensitively.
func (c *Client) FindSection(ctx context.Context, courseID int64, name string) (*Section, error) {
	var out []Section
	err := c.call(ctx, "core_course_get_contents", map[string]string{
		"courseid":          itoa(courseID),
		"options[0][name]":  "excludemodules",
		"options[0][value]": "1",
	}, &out)
	if err != nil {
		return nil, err
	}
	want := strings.TrimSpace(name)
	for i := range out {
		if strings.EqualFold(strings.TrimSpace(out[i].Name), want) {
			return &out[i], nil
		}
	}
	return nil, nil
}

// StreamModules lists the stream modules already present in a course.
func (c *Client) StreamModules(ctx context.Context, courseID int64) ([]Module, error) {
	var out []Module
	if err := c.call(ctx, "local_recsync_stream_modules", map[string]string{"courseid": itoa(courseID)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateModule adds a stream module to a course.
func (c *Client) CreateModule(ctx context.Context, spec ModuleSpec) (*Module, error) {
	var out Module
	err := c.call(ctx, "local_recsync_add_module", map[string]string{
		"courseid":       itoa(spec.CourseID),
		"sectionid":      itoa(spec.SectionID),
		"name":           spec.Name,
		"idnumber":       spec.IDNumber,
		"intro":          spec.Intro,
		"visible":        boolParam(spec.Visible),
		"streamid":       itoa(spec.StreamID),
		"collectionmode": boolParam(spec.CollectionMode),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.CMID == 0 {
		return nil, fmt.Errorf("local_recsync_add_module: no module id returned")
	}
	return &out, nil
}

// AppendToCollection adds a stream id to a collection module's video list.
func (c *Client) AppendToCollection(ctx context.Context, cmid, streamID int64) error {
	return c.call(ctx, "local_recsync_append_collection", map[string]string{
		"cmid":     itoa(cmid),
		"streamid": itoa(streamID),
	}, nil)
}

// MoveModule moves cmid into sectionID, before beforeCMID when non-zero.
func (c *Client) MoveModule(ctx context.Context, cmid, sectionID, beforeCMID int64) error {
	return c.call(ctx, "local_recsync_move_module", map[string]string{
		"cmid":      itoa(cmid),
		"sectionid": itoa(sectionID),
		"beforemod": itoa(beforeCMID),
	}, nil)
}

// DeleteModule removes a course module.
func (c *Client) DeleteModule(ctx context.Context, cmid int64) error {
	return c.call(ctx, "core_course_delete_modules", map[string]string{"cmids[0]": itoa(cmid)}, nil)
}

// SetModuleVisibility shows or hides a course module.
func (c *Client) SetModuleVisibility(ctx context.Context, cmid int64, visible bool) error {
	action := "hide"
	if visible {
		action = "show"
	}
	return c.call(ctx, "core_course_edit_module", map[string]string{"action": action, "id": itoa(cmid)}, nil)
}

type enrolledUser struct {
	User
	Roles []struct {
		RoleID    int64  `json:"roleid"`
		ShortName string `json:"shortname"`
	} `json:"roles"`
}

func (c *Client) enrolled(ctx context.Context, courseID int64) ([]enrolledUser, error) {
	var out []enrolledUser
	if err := c.call(ctx, "core_enrol_get_enrolled_users", map[string]string{"courseid": itoa(courseID)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnrolledUsers returns every user enrolled in a course.
func (c *Client) EnrolledUsers(ctx context.Context, courseID int64) ([]User, error) {
	list, err := c.enrolled(ctx, courseID)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(list))
	for _, u := range list {
		users = append(users, u.User)
	}
	return users, nil
}

// CourseTeachers returns enrolled users holding the editing teacher role.
func (c *Client) CourseTeachers(ctx context.Context, courseID int64) ([]User, error) {
	list, err := c.enrolled(ctx, courseID)
	if err != nil {
		return nil, err
	}
	var users []User
	for _, u := range list {
		for _, r := range u.Roles {
			if r.RoleID == editingTeacherRole || r.ShortName == "editingteacher" {
				users = append(users, u.User)
				break
			}
		}
	}
	return users, nil
}

// UserByEmail returns the account with the given email.
func (c *Client) UserByEmail(ctx context.Context, email string) (*User, error) {
	var out []User
	err := c.call(ctx, "core_user_get_users_by_field", map[string]string{
		"field":     "email",
		"values[0]": strings.ToLower(strings.TrimSpace(email)),
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// SendMessage delivers an HTML notification to one user.
func (c *Client) SendMessage(ctx context.Context, m Message) error {
	return c.call(ctx, "local_recsync_send_notification", map[string]string{
		"userid":   itoa(m.ToUserID),
		"courseid": itoa(m.CourseID),
		"subject":  m.Subject,
		"html":     m.HTML,
	}, nil)
}

// CourseURL is the course landing page.
func (c *Client) CourseURL(courseID int64) string {
	return fmt.Sprintf("%s/course/view.php?id=%d", c.baseURL, courseID)
}

var _ Host = (*Client)(nil)
