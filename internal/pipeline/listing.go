package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stream-sync/recsync/internal/models"
	"github.com/stream-sync/recsync/internal/platform"
	"github.com/stream-sync/recsync/internal/recordings"
)

// Listing discovers recordings on every configured platform and stores the new ones.
func (p *Pipeline) Listing(ctx context.Context) bool {
	ok := true
	w := platform.NewWindow(p.now(), p.opts.DaysToListing)
	for _, a := range p.registry.All() {
		added, err := p.listPlatform(ctx, a, w)
		if err != nil {
			ok = false
			p.logger.Error("listing failed", zap.String("platform", string(a.Platform())), zap.Int("added", added), zap.Error(err))
			continue
		}
		p.logger.Info("listing done", zap.String("platform", string(a.Platform())), zap.Int("added", added))
	}
	return ok
}

// listPlatform stores whatever the adapter found, including the partial result
// that comes back with a listing error, and then reports that error.
func (p *Pipeline) listPlatform(ctx context.Context, a platform.Adapter, w platform.Window) (int, error) {
	found, listErr := a.ListRecordings(ctx, w)
	added := 0
	for i := range found {
		d := &found[i]
		for j := range d.Captions {
			if err := p.store.UpsertClosedCaption(ctx, &d.Captions[j]); err != nil {
				p.logger.Warn("store caption failed", zap.String("meeting_id", d.Captions[j].MeetingID), zap.Error(err))
			}
		}
		if d.Recording == nil {
			continue
		}
		if d.Recording.Platform == "" {
			d.Recording.Platform = a.Platform()
		}
		created, err := p.record(ctx, d)
		if err != nil {
			p.logger.Warn("store recording failed", zap.String("platform", string(a.Platform())),
				zap.String("meeting_id", d.Recording.MeetingID), zap.String("recording_id", d.Recording.RecordingID), zap.Error(err))
			continue
		}
		if created {
			added++
		}
	}
	if listErr != nil {
		return added, fmt.Errorf("list %s: %w", a.Platform(), listErr)
	}
	return added, nil
}

// record inserts a new discovery or refreshes a known mutable one. It reports whether a row was created.
func (p *Pipeline) record(ctx context.Context, d *platform.Discovery) (bool, error) {
	rec := d.Recording
	existing, err := p.store.GetByNaturalKey(ctx, rec.MeetingID, rec.RecordingID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if !d.Mutable {
			return false, nil
		}
		rec.ID = existing.ID
		return false, p.store.RefreshVendorData(ctx, rec)
	}

	rec.Status = models.StatusQueued
	if p.opts.DirectLink {
		rec.Status = models.StatusReady
	}
	rec.Visible = !p.opts.HideFromStudents
	rec.Embedded = models.EmbedPending
	if err := p.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, recordings.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
