package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
)

// Cleanup archives operator-deleted rows and, when retention is configured, deletes
// old recordings upstream on platforms that support it.
func (p *Pipeline) Cleanup(ctx context.Context) bool {
	ok := p.archiveDeleted(ctx)
	if p.opts.DaysToCleanup > 0 {
		if !p.purgeUpstream(ctx) {
			ok = false
		}
	}
	return ok
}

func (p *Pipeline) archiveDeleted(ctx context.Context) bool {
	rows, err := p.store.ListByStatuses(ctx, models.StatusDeleted)
	if err != nil {
		p.logger.Error("list deleted recordings failed", zap.Error(err))
		return false
	}
	ok := true
	for i := range rows {
		rec := &rows[i]
		if p.archiver != nil {
			if err := p.archiver.ArchiveRecording(ctx, rec); err != nil {
				p.logger.Warn("archive snapshot failed", zap.String("recording_id", rec.ID.String()), zap.Error(err))
			}
		}
		if _, err := p.store.TransitionStatus(ctx, rec.ID, models.StatusDeleted, models.StatusArchived); err != nil {
			ok = false
			p.logger.Warn("archive transition failed", zap.String("recording_id", rec.ID.String()), zap.Error(err))
		}
	}
	if len(rows) > 0 {
		p.logger.Info("deleted recordings archived", zap.Int("count", len(rows)))
	}
	return ok
}

func (p *Pipeline) purgeUpstream(ctx context.Context) bool {
	now := p.now()
	cutoff := now.AddDate(0, 0, -p.opts.DaysToCleanup)
	ok := true
	for _, a := range p.registry.All() {
		d, can := a.(platform.Deleter)
		if !can {
			continue
		}
		rows, err := p.store.ListReadyBefore(ctx, a.Platform(), cutoff)
		if err != nil {
			ok = false
			p.logger.Error("list retention candidates failed", zap.String("platform", string(a.Platform())), zap.Error(err))
			continue
		}
		for i := range rows {
			rec := &rows[i]
			if err := d.DeleteRecording(ctx, rec); err != nil {
				ok = false
				p.logger.Warn("upstream delete failed", zap.String("recording_id", rec.ID.String()),
					zap.String("platform", string(rec.Platform)), zap.Error(err))
				continue
			}
			if err := p.store.MarkPurged(ctx, rec.ID, now); err != nil {
				ok = false
				p.logger.Warn("mark purged failed", zap.String("recording_id", rec.ID.String()), zap.Error(err))
				continue
			}
			p.logger.Info("recording deleted upstream", zap.String("recording_id", rec.ID.String()),
				zap.String("platform", string(rec.Platform)), zap.String("recording", rec.RecordingID))
		}
	}
	return ok
}

// RefreshTokens renews vendor credentials on every platform.
func (p *Pipeline) RefreshTokens(ctx context.Context) bool {
	ok := true
	for _, a := range p.registry.All() {
		if err := a.RefreshAuth(ctx); err != nil {
			ok = false
			p.logger.Error("token refresh failed", zap.String("platform", string(a.Platform())), zap.Error(err))
			continue
		}
		p.logger.Info("token refreshed", zap.String("platform", string(a.Platform())))
	}
	return ok
}
