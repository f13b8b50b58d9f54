package recordings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stream-sync/recsync/internal/models"
)

// ErrDuplicate is returned by Insert when the natural key already exists.
var ErrDuplicate = errors.New("recording already exists")

const recordingColumns = `id, platform, meeting_id, recording_id, COALESCE(file_id,''), COALESCE(topic,''), COALESCE(email,''), COALESCE(dept,''),
	start_time, end_time, COALESCE(duration,''), participants, COALESCE(meeting_data,''), COALESCE(recording_data,''),
	status, tries, embedded, visible, stream_id, course_id, module_id, purged_at, created_at, updated_at`

// Repository handles recording and closed caption persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	var platform string
	var status, embedded int16
	err := row.Scan(&rec.ID, &platform, &rec.MeetingID, &rec.RecordingID, &rec.FileID, &rec.Topic, &rec.Email, &rec.Dept,
		&rec.StartTime, &rec.EndTime, &rec.Duration, &rec.Participants, &rec.MeetingData, &rec.RecordingData,
		&status, &rec.Tries, &embedded, &rec.Visible, &rec.StreamID, &rec.CourseID, &rec.ModuleID, &rec.PurgedAt,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Platform = models.Platform(platform)
	rec.Status = models.Status(status)
	rec.Embedded = int(embedded)
	return &rec, nil
}

func collect(rows pgx.Rows) ([]models.Recording, error) {
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// Insert stores a newly discovered recording. Returns ErrDuplicate when another
// sweep inserted the same {meeting_id, recording_id} first.
func (r *Repository) Insert(ctx context.Context, rec *models.Recording) error {
	const q = `INSERT INTO recordings (platform, meeting_id, recording_id, file_id, topic, email, dept, start_time, end_time,
		duration, participants, meeting_data, recording_data, status, tries, embedded, visible, stream_id, course_id, module_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, string(rec.Platform), rec.MeetingID, rec.RecordingID, rec.FileID, rec.Topic, rec.Email, rec.Dept,
		rec.StartTime, rec.EndTime, rec.Duration, rec.Participants, rec.MeetingData, rec.RecordingData,
		int16(rec.Status), rec.Tries, int16(rec.Embedded), rec.Visible, rec.StreamID, rec.CourseID, rec.ModuleID).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// GetByID returns a recording by ID, or nil if none.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// GetByNaturalKey returns the recording identified by vendor meeting and recording ids, or nil if none.
func (r *Repository) GetByNaturalKey(ctx context.Context, meetingID, recordingID string) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE meeting_id = $1 AND recording_id = $2`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, meetingID, recordingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Update writes every mutable column of rec. Operator actions use it on a row
// they just read; sweeps use the narrow writes below.
func (r *Repository) Update(ctx context.Context, rec *models.Recording) error {
	const q = `UPDATE recordings SET file_id = $1, topic = $2, email = $3, dept = $4, start_time = $5, end_time = $6,
		duration = $7, participants = $8, meeting_data = $9, recording_data = $10, status = $11, tries = $12, embedded = $13,
		visible = $14, stream_id = $15, course_id = $16, module_id = $17, purged_at = $18, updated_at = NOW()
		WHERE id = $19
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, rec.FileID, rec.Topic, rec.Email, rec.Dept, rec.StartTime, rec.EndTime,
		rec.Duration, rec.Participants, rec.MeetingData, rec.RecordingData, int16(rec.Status), rec.Tries, int16(rec.Embedded),
		rec.Visible, rec.StreamID, rec.CourseID, rec.ModuleID, rec.PurgedAt, rec.ID).Scan(&rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update recording %s: %w", rec.ID, err)
	}
	return nil
}

// ListFilter narrows List.
type ListFilter struct {
	Status   *models.Status
	Platform models.Platform
	Limit    int
	Offset   int
}

// List returns recordings newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Recording, error) {
	var where []string
	var args []any
	if f.Status != nil {
		args = append(args, int16(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Platform != "" {
		args = append(args, string(f.Platform))
		where = append(where, fmt.Sprintf("platform = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT ` + recordingColumns + ` FROM recordings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, f.Offset)
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListByStatuses returns recordings in any of the given statuses, oldest first.
func (r *Repository) ListByStatuses(ctx context.Context, statuses ...models.Status) ([]models.Recording, error) {
	codes := make([]int16, len(statuses))
	for i, s := range statuses {
		codes[i] = int16(s)
	}
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE status = ANY($1) ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, codes)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListForEmbed returns READY recordings not yet embedded, newest first.
func (r *Repository) ListForEmbed(ctx context.Context, limit int) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE embedded = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3`
	rows, err := r.pool.Query(ctx, q, int16(models.EmbedPending), int16(models.StatusReady), limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListReadyBefore returns READY recordings of a platform that started before cutoff and are not purged yet.
func (r *Repository) ListReadyBefore(ctx context.Context, platform models.Platform, cutoff time.Time) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings
		WHERE platform = $1 AND status = $2 AND purged_at IS NULL AND COALESCE(start_time, created_at) < $3
		ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, string(platform), int16(models.StatusReady), cutoff)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// TransitionStatus moves a row from one status to another only if it is still in from.
// The boolean reports whether this call made the change.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.Status) (bool, error) {
	const q = `UPDATE recordings SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, int16(to), id, int16(from))
	if err != nil {
		return false, fmt.Errorf("transition %s %s->%s: %w", id, from, to, err)
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementTries records one failed upload attempt.
func (r *Repository) IncrementTries(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE recordings SET tries = tries + 1, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// MarkUploaded stores the streaming asset id and marks a PROCESSING row READY.
// It reports false when the row left PROCESSING meanwhile.
func (r *Repository) MarkUploaded(ctx context.Context, id uuid.UUID, streamID int64) (bool, error) {
	const q = `UPDATE recordings SET stream_id = $1, status = $2, updated_at = NOW() WHERE id = $3 AND status = $4`
	tag, err := r.pool.Exec(ctx, q, streamID, int16(models.StatusReady), id, int16(models.StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("mark uploaded %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RefreshVendorData rewrites the vendor-owned columns of a known row. Pipeline
// state is left alone.
func (r *Repository) RefreshVendorData(ctx context.Context, rec *models.Recording) error {
	const q = `UPDATE recordings SET start_time = $1, end_time = $2, duration = $3, meeting_data = $4, recording_data = $5,
		updated_at = NOW() WHERE id = $6`
	_, err := r.pool.Exec(ctx, q, rec.StartTime, rec.EndTime, rec.Duration, rec.MeetingData, rec.RecordingData, rec.ID)
	if err != nil {
		return fmt.Errorf("refresh recording %s: %w", rec.ID, err)
	}
	return nil
}

// SetEmbedState records the embed outcome of a READY row still pending embed.
// It reports false when the row was deleted, recovered or embedded meanwhile.
func (r *Repository) SetEmbedState(ctx context.Context, id uuid.UUID, embedded int, courseID, moduleID int64) (bool, error) {
	const q = `UPDATE recordings SET embedded = $1, course_id = $2, module_id = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5 AND embedded = $6`
	tag, err := r.pool.Exec(ctx, q, int16(embedded), courseID, moduleID, id, int16(models.StatusReady), int16(models.EmbedPending))
	if err != nil {
		return false, fmt.Errorf("set embed state %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPurged records that the upstream copy was deleted by retention cleanup.
func (r *Repository) MarkPurged(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE recordings SET purged_at = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, at, id)
	return err
}

// UpsertClosedCaption stores a caption keyed by {meeting_id, uuid}, refreshing its URL on re-discovery.
func (r *Repository) UpsertClosedCaption(ctx context.Context, cc *models.ClosedCaption) error {
	const q = `INSERT INTO closed_captions (meeting_id, uuid, download_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (meeting_id, uuid) DO UPDATE SET download_url = EXCLUDED.download_url
		RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, cc.MeetingID, cc.UUID, cc.DownloadURL).Scan(&cc.ID, &cc.CreatedAt); err != nil {
		return fmt.Errorf("upsert closed caption: %w", err)
	}
	return nil
}

// GetClosedCaption returns the caption for a meeting session, or nil if none.
func (r *Repository) GetClosedCaption(ctx context.Context, meetingID, sessionUUID string) (*models.ClosedCaption, error) {
	const q = `SELECT id, meeting_id, uuid, download_url, created_at FROM closed_captions WHERE meeting_id = $1 AND uuid = $2`
	var cc models.ClosedCaption
	err := r.pool.QueryRow(ctx, q, meetingID, sessionUUID).Scan(&cc.ID, &cc.MeetingID, &cc.UUID, &cc.DownloadURL, &cc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cc, nil
}
