package pipeline

import (
	"context"
	"errors"
	"fmt"
	"html"

	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/coursehost"
	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
)

// Embed places uploaded recordings into their courses.
func (p *Pipeline) Embed(ctx context.Context) bool {
	rows, err := p.store.ListForEmbed(ctx, p.opts.EmbedBatch)
	if err != nil {
		p.logger.Error("list embed candidates failed", zap.Error(err))
		return false
	}
	if p.opts.BasedGrouping {
		rows = p.suppressDuplicates(ctx, rows)
	}
	if len(rows) == 0 {
		p.logger.Debug("no recordings to embed")
		return true
	}
	ok := true
	for i := range rows {
		if err := p.embedOne(ctx, &rows[i]); err != nil {
			ok = false
			p.logger.Warn("embed failed", zap.String("recording_id", rows[i].ID.String()), zap.Error(err))
		}
	}
	return ok
}

// suppressDuplicates keeps the first row of each meeting session and marks the rest suppressed.
func (p *Pipeline) suppressDuplicates(ctx context.Context, rows []models.Recording) []models.Recording {
	seen := make(map[string]bool)
	kept := make([]models.Recording, 0, len(rows))
	for i := range rows {
		session := rows[i].MeetingValue("uuid")
		if session != "" && seen[session] {
			if _, err := p.store.SetEmbedState(ctx, rows[i].ID, models.EmbedSuppressed, rows[i].CourseID, 0); err != nil {
				p.logger.Warn("suppress duplicate failed", zap.String("recording_id", rows[i].ID.String()), zap.Error(err))
			}
			continue
		}
		if session != "" {
			seen[session] = true
		}
		kept = append(kept, rows[i])
	}
	return kept
}

func (p *Pipeline) embedOne(ctx context.Context, rec *models.Recording) error {
	a, ok := p.adapter(rec)
	if !ok {
		return nil
	}

	res, err := a.ResolveCourse(ctx, rec)
	if err != nil && !errors.Is(err, platform.ErrCourseNotFound) {
		return fmt.Errorf("resolve course: %w", err)
	}
	// An operator-assigned course wins over vendor metadata.
	if rec.CourseID > 0 && (res == nil || res.CourseID != rec.CourseID) {
		assigned := &platform.Resolution{CourseID: rec.CourseID}
		if res != nil {
			assigned.SectionName = res.SectionName
		}
		res = assigned
	}
	if res == nil || res.CourseID == 0 {
		return p.markNoCourse(ctx, rec)
	}

	course, err := p.host.GetCourse(ctx, res.CourseID)
	if err != nil {
		return fmt.Errorf("get course %d: %w", res.CourseID, err)
	}
	if course == nil {
		return p.markNoCourse(ctx, rec)
	}

	var section *coursehost.Section
	if res.SectionName != "" {
		section, err = p.host.FindSection(ctx, course.ID, res.SectionName)
		if err != nil {
			p.logger.Warn("find section failed", zap.Int64("course_id", course.ID), zap.String("section", res.SectionName), zap.Error(err))
		}
	}

	module, created, err := p.placeModule(ctx, a, rec, course, res, section)
	if err != nil {
		return err
	}
	if created {
		p.positionModule(ctx, module, res, section)
	}

	stored, err := p.store.SetEmbedState(ctx, rec.ID, models.EmbedDone, course.ID, module.CMID)
	if err != nil {
		return fmt.Errorf("store embed result: %w", err)
	}
	if !stored {
		p.logger.Warn("recording changed during embed", zap.String("recording_id", rec.ID.String()), zap.Int64("cmid", module.CMID))
		if created {
			if err := p.host.DeleteModule(ctx, module.CMID); err != nil {
				p.logger.Warn("detach orphan module failed", zap.Int64("cmid", module.CMID), zap.Error(err))
			}
		}
		return nil
	}
	rec.Embedded = models.EmbedDone
	rec.CourseID = course.ID
	rec.ModuleID = module.CMID
	p.logger.Info("recording embedded", zap.String("recording_id", rec.ID.String()),
		zap.Int64("course_id", course.ID), zap.Int64("cmid", module.CMID))

	if rec.Visible && course.Visible {
		p.notifyCourse(ctx, rec, course.ID)
	}
	return nil
}

func (p *Pipeline) markNoCourse(ctx context.Context, rec *models.Recording) error {
	p.logger.Info("no course for recording", zap.String("recording_id", rec.ID.String()),
		zap.String("platform", string(rec.Platform)), zap.String("meeting_id", rec.MeetingID))
	if _, err := p.store.SetEmbedState(ctx, rec.ID, models.EmbedNoCourse, rec.CourseID, 0); err != nil {
		return err
	}
	rec.Embedded = models.EmbedNoCourse
	return nil
}

// placeModule creates the stream module, or appends to the course's collection module for
// platforms that aggregate. The boolean reports whether a new module was created.
func (p *Pipeline) placeModule(ctx context.Context, a platform.Adapter, rec *models.Recording, course *coursehost.Course,
	res *platform.Resolution, section *coursehost.Section) (*coursehost.Module, bool, error) {
	spec := coursehost.ModuleSpec{
		CourseID: course.ID,
		Name:     ModuleName(rec, p.opts.Naming, p.opts.Location),
		IDNumber: rec.ID.String(),
		Visible:  rec.Visible,
		StreamID: rec.StreamID,
	}
	switch {
	case section != nil:
		spec.SectionID = section.ID
	case res.Activity != nil:
		spec.SectionID = res.Activity.SectionID
	}

	if p.opts.DirectLink {
		spec.StreamID = 0
		if link := a.PlaybackURL(rec); link != "" {
			spec.Intro = fmt.Sprintf(`<a href="%s">Watch the recording</a>`, html.EscapeString(link))
		}
	} else if c, ok := a.(platform.Collector); ok && c.CollectionMode() {
		modules, err := p.host.StreamModules(ctx, course.ID)
		if err != nil {
			return nil, false, fmt.Errorf("stream modules: %w", err)
		}
		for i := range modules {
			if modules[i].CollectionMode {
				if err := p.host.AppendToCollection(ctx, modules[i].CMID, rec.StreamID); err != nil {
					return nil, false, fmt.Errorf("append to collection: %w", err)
				}
				return &modules[i], false, nil
			}
		}
		spec.CollectionMode = len(modules) == 0
	}

	module, err := p.host.CreateModule(ctx, spec)
	if err != nil {
		return nil, false, fmt.Errorf("create module: %w", err)
	}
	return module, true, nil
}

// positionModule moves a new module next to its destination. Failures leave the module where it was created.
func (p *Pipeline) positionModule(ctx context.Context, module *coursehost.Module, res *platform.Resolution, section *coursehost.Section) {
	switch {
	case section != nil:
		if err := p.host.MoveModule(ctx, module.CMID, section.ID, 0); err != nil {
			p.logger.Warn("move module to section failed", zap.Int64("cmid", module.CMID), zap.Error(err))
		}
	case res.Activity != nil:
		act := res.Activity
		if err := p.host.MoveModule(ctx, module.CMID, act.SectionID, act.CMID); err != nil {
			p.logger.Warn("move module before activity failed", zap.Int64("cmid", module.CMID), zap.Error(err))
			return
		}
		if p.opts.EmbedAfter {
			if err := p.host.MoveModule(ctx, act.CMID, act.SectionID, module.CMID); err != nil {
				p.logger.Warn("move activity before module failed", zap.Int64("cmid", act.CMID), zap.Error(err))
			}
		}
	}
}

// notifyCourse enqueues one notification per enrolled user.
func (p *Pipeline) notifyCourse(ctx context.Context, rec *models.Recording, courseID int64) {
	users, err := p.host.EnrolledUsers(ctx, courseID)
	if err != nil {
		p.logger.Warn("enrolled users failed", zap.Int64("course_id", courseID), zap.Error(err))
		return
	}
	for _, u := range users {
		p.enqueue(ctx, rec, u.ID, courseID)
	}
}
