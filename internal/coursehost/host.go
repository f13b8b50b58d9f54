// Package coursehost talks to the LMS that owns courses, activities and users.
package coursehost

import (
	"context"
)

// Course is the subset of LMS course fields the pipeline reads.
type Course struct {
	ID         int64  `json:"id"`
	FullName   string `json:"fullname"`
	ShortName  string `json:"shortname"`
	CategoryID int64  `json:"categoryid"`
	Visible    bool   `json:"-"`
}

// Activity is a course module of another plugin a recording belongs next to.
type Activity struct {
	CMID      int64  `json:"cmid"`
	Instance  int64  `json:"instance"`
	CourseID  int64  `json:"course"`
	SectionID int64  `json:"section"`
	ModName   string `json:"modname"`
}

// ActivityQuery finds one activity by a field of its instance table.
type ActivityQuery struct {
	ModName string
	Field   string
	Value   string
	// Like matches Value as a substring.
	Like bool
}

// Section is a course section.
type Section struct {
	ID     int64  `json:"id"`
	Number int    `json:"section"`
	Name   string `json:"name"`
}

// User is an LMS account.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`
}

// ModuleSpec describes a stream module to create.
type ModuleSpec struct {
	CourseID       int64
	SectionID      int64
	Name           string
	IDNumber       string
	Intro          string
	Visible        bool
	StreamID       int64
	CollectionMode bool
}

// Module is a created or existing stream module.
type Module struct {
	CMID           int64 `json:"cmid"`
	Instance       int64 `json:"instance"`
	SectionID      int64 `json:"section"`
	CollectionMode bool  `json:"collectionmode"`
}

// Message is a notification to one user.
type Message struct {
	ToUserID int64
	CourseID int64
	Subject  string
	HTML     string
}

// Host is the LMS surface used by the pipeline. Lookups return nil, nil when nothing matches.
type Host interface {
	FindActivity(ctx context.Context, q ActivityQuery) (*Activity, error)
	GetCourse(ctx context.Context, courseID int64) (*Course, error)
	CategoryPath(ctx context.Context, categoryID int64) ([]string, error)
	CourseTags(ctx context.Context, courseID int64) ([]string, error)
	FindSection(ctx context.Context, courseID int64, name string) (*Section, error)
	StreamModules(ctx context.Context, courseID int64) ([]Module, error)
	CreateModule(ctx context.Context, spec ModuleSpec) (*Module, error)
	AppendToCollection(ctx context.Context, cmid, streamID int64) error
	MoveModule(ctx context.Context, cmid, sectionID, beforeCMID int64) error
	DeleteModule(ctx context.Context, cmid int64) error
	SetModuleVisibility(ctx context.Context, cmid int64, visible bool) error
	EnrolledUsers(ctx context.Context, courseID int64) ([]User, error)
	CourseTeachers(ctx context.Context, courseID int64) ([]User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	SendMessage(ctx context.Context, m Message) error
	CourseURL(courseID int64) string
}
