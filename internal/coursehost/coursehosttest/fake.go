// Package coursehosttest provides an in-memory coursehost.Host for tests.
package coursehosttest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stream-sync/recsync/internal/coursehost"
)

type activityEntry struct {
	modName, field, value string
	activity              coursehost.Activity
}

// Move records one MoveModule call.
type Move struct {
	CMID, SectionID, BeforeCMID int64
}

// Fake is a concurrency-safe in-memory LMS.
type Fake struct {
	mu sync.Mutex

	activities []activityEntry
	Courses    map[int64]*coursehost.Course
	Categories map[int64][]string
	Tags       map[int64][]string
	Sections   map[int64][]coursehost.Section
	Modules    map[int64][]coursehost.Module
	Enrolled   map[int64][]coursehost.User
	Teachers   map[int64][]coursehost.User
	Users      map[string]*coursehost.User

	Created    []coursehost.ModuleSpec
	Moves      []Move
	Deleted    []int64
	Visibility map[int64]bool
	Appended   map[int64][]int64
	Messages   []coursehost.Message

	// SendErr, when set, fails every SendMessage.
	SendErr error
	// CreateErr, when set, fails every CreateModule.
	CreateErr error

	nextCMID int64
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Courses:    make(map[int64]*coursehost.Course),
		Categories: make(map[int64][]string),
		Tags:       make(map[int64][]string),
		Sections:   make(map[int64][]coursehost.Section),
		Modules:    make(map[int64][]coursehost.Module),
		Enrolled:   make(map[int64][]coursehost.User),
		Teachers:   make(map[int64][]coursehost.User),
		Users:      make(map[string]*coursehost.User),
		Visibility: make(map[int64]bool),
		Appended:   make(map[int64][]int64),
		nextCMID:   1000,
	}
}

// AddActivity registers an activity whose instance field equals value.
func (f *Fake) AddActivity(modName, field, value string, a coursehost.Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, activityEntry{modName: modName, field: field, value: value, activity: a})
}

// AddCourse registers a course.
func (f *Fake) AddCourse(c coursehost.Course) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Courses[c.ID] = &c
}

// AddUser registers an account by email.
func (f *Fake) AddUser(u coursehost.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[strings.ToLower(u.Email)] = &u
}

func (f *Fake) FindActivity(_ context.Context, q coursehost.ActivityQuery) (*coursehost.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.activities {
		if e.modName != q.ModName || e.field != q.Field {
			continue
		}
		if (q.Like && strings.Contains(e.value, q.Value)) || (!q.Like && e.value == q.Value) {
			a := e.activity
			return &a, nil
		}
	}
	return nil, nil
}

func (f *Fake) GetCourse(_ context.Context, courseID int64) (*coursehost.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Courses[courseID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) CategoryPath(_ context.Context, categoryID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Categories[categoryID], nil
}

func (f *Fake) CourseTags(_ context.Context, courseID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Tags[courseID], nil
}

func (f *Fake) FindSection(_ context.Context, courseID int64, name string) (*coursehost.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.Sections[courseID] {
		if strings.EqualFold(s.Name, name) {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) StreamModules(_ context.Context, courseID int64) ([]coursehost.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]coursehost.Module(nil), f.Modules[courseID]...), nil
}

func (f *Fake) CreateModule(_ context.Context, spec coursehost.ModuleSpec) (*coursehost.Module, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextCMID++
	m := coursehost.Module{CMID: f.nextCMID, Instance: f.nextCMID + 5000, SectionID: spec.SectionID, CollectionMode: spec.CollectionMode}
	f.Created = append(f.Created, spec)
	f.Modules[spec.CourseID] = append(f.Modules[spec.CourseID], m)
	f.Visibility[m.CMID] = spec.Visible
	return &m, nil
}

func (f *Fake) AppendToCollection(_ context.Context, cmid, streamID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Appended[cmid] = append(f.Appended[cmid], streamID)
	return nil
}

func (f *Fake) MoveModule(_ context.Context, cmid, sectionID, beforeCMID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Moves = append(f.Moves, Move{CMID: cmid, SectionID: sectionID, BeforeCMID: beforeCMID})
	return nil
}

func (f *Fake) DeleteModule(_ context.Context, cmid int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, cmid)
	return nil
}

func (f *Fake) SetModuleVisibility(_ context.Context, cmid int64, visible bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Visibility[cmid] = visible
	return nil
}

func (f *Fake) EnrolledUsers(_ context.Context, courseID int64) ([]coursehost.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Enrolled[courseID], nil
}

func (f *Fake) CourseTeachers(_ context.Context, courseID int64) ([]coursehost.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Teachers[courseID], nil
}

func (f *Fake) UserByEmail(_ context.Context, email string) (*coursehost.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Users[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *Fake) SendMessage(_ context.Context, m coursehost.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Messages = append(f.Messages, m)
	return nil
}

func (f *Fake) CourseURL(courseID int64) string {
	return fmt.Sprintf("https://lms.test/course/view.php?id=%d", courseID)
}

var _ coursehost.Host = (*Fake)(nil)
