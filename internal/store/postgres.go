package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"tubebrief/internal/models"
)

// ErrNotFound is returned when no video row matches the lookup.
var ErrNotFound = errors.New("video not found")

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateVideoParams collects inputs required to insert a pending video row.
type CreateVideoParams struct {
	URL          string
	VideoID      string
	Title        *string
	ChannelName  *string
	ThumbnailURL *string
}

// CreateVideo inserts a pending row for the canonical URL. The URL carries a
// unique constraint, so a concurrent insert for the same URL loses cleanly:
// ON CONFLICT DO NOTHING reports zero rows and the existing row is re-read.
// The returned bool is true when this call created the row.
func (s *Store) CreateVideo(ctx context.Context, p CreateVideoParams) (models.Video, bool, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO videos (id, url, video_id, title, channel_name, thumbnail_url, processing_status, summary_audio_status, insights_audio_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $9)
		ON CONFLICT (url) DO NOTHING
	`, id, p.URL, p.VideoID, p.Title, p.ChannelName, p.ThumbnailURL, models.StatusPending, models.AudioNone, now)
	if err != nil {
		return models.Video{}, false, fmt.Errorf("insert video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Another request created the row between our lookup and insert.
		existing, err := s.GetVideoByURL(ctx, p.URL)
		if err != nil {
			return models.Video{}, false, err
		}
		return existing, false, nil
	}

	video, err := s.GetVideo(ctx, id)
	if err != nil {
		return models.Video{}, false, err
	}
	return video, true, nil
}

const videoColumns = `
	id, url, video_id, title, channel_name, thumbnail_url,
	transcript, summary, insights, processing_status, error_message,
	summary_audio_url, summary_audio_status, insights_audio_url, insights_audio_status,
	created_at, updated_at`

// GetVideo fetches a video by id.
func (s *Store) GetVideo(ctx context.Context, id string) (models.Video, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
	return scanVideo(row)
}

// GetVideoByURL fetches a video by canonical URL.
func (s *Store) GetVideoByURL(ctx context.Context, url string) (models.Video, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE url = $1`, url)
	return scanVideo(row)
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var v models.Video
	var title, channel, thumb, lastErr, sumURL, insURL pgtype.Text

	err := row.Scan(
		&v.ID, &v.URL, &v.VideoID, &title, &channel, &thumb,
		&v.Transcript, &v.Summary, &v.Insights, &v.ProcessingStatus, &lastErr,
		&sumURL, &v.SummaryAudio, &insURL, &v.InsightsAudio,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Video{}, ErrNotFound
	}
	if err != nil {
		return models.Video{}, fmt.Errorf("scan video: %w", err)
	}

	v.Title = textPtr(title)
	v.ChannelName = textPtr(channel)
	v.ThumbnailURL = textPtr(thumb)
	v.ErrorMessage = textPtr(lastErr)
	v.SummaryAudioURL = textPtr(sumURL)
	v.InsightsAudioURL = textPtr(insURL)
	return v, nil
}

// TryTransition performs the single conditional status update every racing
// writer depends on. It reports whether this caller moved the row from
// `from` to `to`; a false return means another writer got there first.
func (s *Store) TryTransition(ctx context.Context, id, from, to string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE videos SET processing_status = $3, updated_at = NOW()
		WHERE id = $1 AND processing_status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("transition %s->%s: %w", from, to, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetTranscript persists the extraction stage output.
func (s *Store) SetTranscript(ctx context.Context, id, transcript string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE videos SET transcript = $2, updated_at = NOW() WHERE id = $1
	`, id, transcript)
	return err
}

// SetCompleted writes the summarization output and the terminal status in one
// statement. Unconditional by design: only the pipeline instance that won the
// processing transition ever reaches this write.
func (s *Store) SetCompleted(ctx context.Context, id, title, summary, insights string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE videos
		SET title = $2, summary = $3, insights = $4,
		    processing_status = $5, error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, title, summary, insights, models.StatusCompleted)
	return err
}

// SetFailed records the terminal failed status with a diagnostic message.
func (s *Store) SetFailed(ctx context.Context, id, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE videos SET processing_status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusFailed, message)
	return err
}

// Touch refreshes updated_at so recency-based eviction treats a dedup hit as
// a fresh access.
func (s *Store) Touch(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE videos SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

func audioColumns(section string) (urlCol, statusCol string, err error) {
	switch section {
	case models.SectionSummary:
		return "summary_audio_url", "summary_audio_status", nil
	case models.SectionInsights:
		return "insights_audio_url", "insights_audio_status", nil
	default:
		return "", "", fmt.Errorf("unknown audio section %q", section)
	}
}

// TryAcquireAudioLock atomically moves a section's audio status into
// processing unless it is already there. The winner synthesizes; losers poll.
func (s *Store) TryAcquireAudioLock(ctx context.Context, id, section string) (bool, error) {
	_, statusCol, err := audioColumns(section)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE videos SET %s = $2, updated_at = NOW()
		WHERE id = $1 AND %s <> $2
	`, statusCol, statusCol), id, models.AudioProcessing)
	if err != nil {
		return false, fmt.Errorf("acquire audio lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetAudioResult finalizes a synthesis: artifact location plus completed
// status written together so pollers never observe one without the other.
func (s *Store) SetAudioResult(ctx context.Context, id, section, audioURL string) error {
	urlCol, statusCol, err := audioColumns(section)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE videos SET %s = $2, %s = $3, updated_at = NOW() WHERE id = $1
	`, urlCol, statusCol), id, audioURL, models.AudioCompleted)
	return err
}

// SetAudioFailed releases the lock by marking the section failed. A later
// request may re-acquire and retry.
func (s *Store) SetAudioFailed(ctx context.Context, id, section string) error {
	_, statusCol, err := audioColumns(section)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE videos SET %s = $2, updated_at = NOW() WHERE id = $1
	`, statusCol), id, models.AudioFailed)
	return err
}

// CountByStatus returns how many videos sit in a given pipeline state.
func (s *Store) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM videos WHERE processing_status = $1
	`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
