package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
	"github.com/stream-sync/recsync/internal/streaming"
)

// Upload sends queued recordings to the streaming host.
func (p *Pipeline) Upload(ctx context.Context) bool {
	rows, err := p.store.ListByStatuses(ctx, models.StatusQueued, models.StatusProcessing)
	if err != nil {
		p.logger.Error("list upload candidates failed", zap.Error(err))
		return false
	}
	ok := true
	uploaded := 0
	for i := range rows {
		done, err := p.uploadOne(ctx, &rows[i])
		if err != nil {
			ok = false
			p.logger.Warn("upload failed", zap.String("recording_id", rows[i].ID.String()), zap.Error(err))
			continue
		}
		if done {
			uploaded++
		}
	}
	p.logger.Info("upload done", zap.Int("candidates", len(rows)), zap.Int("uploaded", uploaded))
	return ok
}

func (p *Pipeline) uploadOne(ctx context.Context, rec *models.Recording) (bool, error) {
	if rec.Status == models.StatusProcessing && rec.Tries >= p.opts.UploadMaxTries {
		if _, err := p.store.TransitionStatus(ctx, rec.ID, models.StatusProcessing, models.StatusInvalid); err != nil {
			return false, err
		}
		p.logger.Warn("recording marked invalid", zap.String("recording_id", rec.ID.String()), zap.Int("tries", rec.Tries))
		return false, nil
	}

	a, ok := p.adapter(rec)
	if !ok {
		return false, nil
	}
	dl, err := a.DownloadDescriptor(ctx, rec)
	if err != nil {
		if errors.Is(err, platform.ErrNoDownloadURL) {
			p.logger.Info("recording has no download url yet", zap.String("recording_id", rec.ID.String()))
			return false, nil
		}
		p.failAttempt(ctx, rec)
		return false, fmt.Errorf("download descriptor: %w", err)
	}

	claimed, err := p.store.TransitionStatus(ctx, rec.ID, rec.Status, models.StatusProcessing)
	if err != nil {
		return false, err
	}
	if !claimed {
		p.logger.Debug("recording claimed elsewhere", zap.String("recording_id", rec.ID.String()))
		return false, nil
	}
	rec.Status = models.StatusProcessing

	up := p.uploadMetadata(ctx, a, rec)
	up.DownloadURL = dl.URL
	streamID, err := p.uploader.Upload(ctx, up)
	if err != nil {
		p.incrementTries(ctx, rec)
		return false, fmt.Errorf("upload: %w", err)
	}
	marked, err := p.store.MarkUploaded(ctx, rec.ID, streamID)
	if err != nil {
		return false, fmt.Errorf("mark uploaded: %w", err)
	}
	if !marked {
		p.logger.Warn("recording left processing during upload", zap.String("recording_id", rec.ID.String()),
			zap.Int64("stream_id", streamID))
		return false, nil
	}
	rec.StreamID = streamID
	rec.Status = models.StatusReady
	p.logger.Info("recording uploaded", zap.String("recording_id", rec.ID.String()), zap.Int64("stream_id", streamID))

	p.notifyOwner(ctx, rec)
	return true, nil
}

// failAttempt counts a failed attempt that happened before the claim. The row is
// claimed first so the tries bound applies to it.
func (p *Pipeline) failAttempt(ctx context.Context, rec *models.Recording) {
	claimed, err := p.store.TransitionStatus(ctx, rec.ID, rec.Status, models.StatusProcessing)
	if err != nil {
		p.logger.Error("claim failed recording", zap.String("recording_id", rec.ID.String()), zap.Error(err))
		return
	}
	if claimed {
		p.incrementTries(ctx, rec)
	}
}

func (p *Pipeline) incrementTries(ctx context.Context, rec *models.Recording) {
	if err := p.store.IncrementTries(ctx, rec.ID); err != nil {
		p.logger.Error("increment tries failed", zap.String("recording_id", rec.ID.String()), zap.Error(err))
	}
}

// uploadMetadata fills everything but the download URL. Course lookups are best effort.
func (p *Pipeline) uploadMetadata(ctx context.Context, a platform.Adapter, rec *models.Recording) streaming.Upload {
	up := streaming.Upload{
		Topic:         rec.Topic,
		Email:         rec.Email,
		CategoryID:    p.opts.CategoryID,
		RecordingData: rec.RecordingData,
		MeetingData:   rec.MeetingData,
		Hostname:      p.opts.Hostname,
	}

	if session := rec.MeetingValue("uuid"); session != "" {
		cc, err := p.store.GetClosedCaption(ctx, rec.MeetingID, session)
		if err != nil {
			p.logger.Warn("caption lookup failed", zap.String("recording_id", rec.ID.String()), zap.Error(err))
		} else if cc != nil {
			up.CaptionURL = cc.DownloadURL
		}
	}

	courseID := rec.CourseID
	res, err := a.ResolveCourse(ctx, rec)
	if err != nil && !errors.Is(err, platform.ErrCourseNotFound) {
		p.logger.Debug("course resolution failed", zap.String("recording_id", rec.ID.String()), zap.Error(err))
	}
	if res != nil && res.CourseID > 0 {
		courseID = res.CourseID
	}
	if courseID == 0 {
		return up
	}
	course, err := p.host.GetCourse(ctx, courseID)
	if err != nil || course == nil {
		return up
	}

	tags, err := p.host.CategoryPath(ctx, course.CategoryID)
	if err != nil {
		p.logger.Debug("category path failed", zap.Int64("course_id", course.ID), zap.Error(err))
	}
	if courseTags, err := p.host.CourseTags(ctx, course.ID); err == nil {
		tags = append(tags, courseTags...)
	}
	up.Tags = tags
	up.CourseID = course.ID
	up.CourseName = course.FullName
	up.Description = fmt.Sprintf("[%s] Meeting#%s\n\n%s\n%s\n",
		rec.Platform.Label(), rec.MeetingID, course.FullName, p.host.CourseURL(course.ID))
	return up
}

// notifyOwner tells the recording owner, matched by email, that the upload finished.
func (p *Pipeline) notifyOwner(ctx context.Context, rec *models.Recording) {
	if rec.Email == "" {
		return
	}
	user, err := p.host.UserByEmail(ctx, rec.Email)
	if err != nil {
		p.logger.Warn("owner lookup failed", zap.String("email", rec.Email), zap.Error(err))
		return
	}
	if user == nil {
		p.logger.Debug("owner has no lms account", zap.String("email", rec.Email))
		return
	}
	p.enqueue(ctx, rec, user.ID, p.opts.SiteID)
}
