package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"tubebrief/internal/models"
	"tubebrief/internal/store"
	"tubebrief/internal/summarize"
	"tubebrief/internal/telemetry"
	"tubebrief/internal/transcript"
	"tubebrief/internal/youtube"
)

// RecordStore is the slice of the store the orchestrator depends on.
// TryTransition is the sole mutual-exclusion primitive: a pipeline only runs
// for the caller that won the transition into processing.
type RecordStore interface {
	GetVideoByURL(ctx context.Context, url string) (models.Video, error)
	GetVideo(ctx context.Context, id string) (models.Video, error)
	CreateVideo(ctx context.Context, p store.CreateVideoParams) (models.Video, bool, error)
	TryTransition(ctx context.Context, id, from, to string) (bool, error)
	SetTranscript(ctx context.Context, id, transcript string) error
	SetCompleted(ctx context.Context, id, title, summary, insights string) error
	SetFailed(ctx context.Context, id, message string) error
	Touch(ctx context.Context, id string) error
}

// TranscriptCache is the read-through layer checked before extraction and
// written after. Optional; a nil cache means every run extracts.
type TranscriptCache interface {
	Get(ctx context.Context, videoID string) (string, bool, error)
	Set(ctx context.Context, videoID, transcript string) error
	Touch(ctx context.Context, videoID string) error
}

// Thumbnailer copies the upstream thumbnail into our blob store. Optional.
type Thumbnailer interface {
	Ingest(ctx context.Context, videoID, thumbnailURL string) (string, error)
}

// Service orchestrates the submit → extract → summarize → complete pipeline.
type Service struct {
	store      RecordStore
	cache      TranscriptCache
	extractor  transcript.Extractor
	summarizer summarize.Summarizer
	metadata   youtube.MetadataFetcher
	thumbs     Thumbnailer
	logger     zerolog.Logger
}

// Options carries the optional collaborators.
type Options struct {
	Cache    TranscriptCache
	Metadata youtube.MetadataFetcher
	Thumbs   Thumbnailer
}

func New(st RecordStore, ext transcript.Extractor, sum summarize.Summarizer, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		store:      st,
		cache:      opts.Cache,
		extractor:  ext,
		summarizer: sum,
		metadata:   opts.Metadata,
		thumbs:     opts.Thumbs,
		logger:     logger,
	}
}

// SubmitResult reports what a submission resolved to. Started is true when
// this call launched a pipeline run; Task is its handle, nil otherwise.
type SubmitResult struct {
	Video   models.Video
	Started bool
	Task    *Task
}

// Submit deduplicates a URL and, when this caller wins the processing
// transition, launches the pipeline detached from the request. Submitting
// the same URL N times concurrently yields exactly one execution; the other
// callers short-circuit to the existing row.
func (s *Service) Submit(ctx context.Context, rawURL string, force bool) (SubmitResult, error) {
	canonical, err := youtube.Canonicalize(rawURL)
	if err != nil {
		return SubmitResult{}, err
	}
	telemetry.SubmissionsTotal.Inc()

	video, err := s.store.GetVideoByURL(ctx, canonical)
	switch {
	case err == nil:
		telemetry.DedupHits.Inc()
	case errors.Is(err, store.ErrNotFound):
		video, err = s.createPending(ctx, canonical)
		if err != nil {
			return SubmitResult{}, err
		}
	default:
		return SubmitResult{}, err
	}

	return s.claim(ctx, video, force)
}

// createPending inserts the placeholder row, with best-effort metadata. A
// lost insert race resolves to the concurrent winner's row.
func (s *Service) createPending(ctx context.Context, canonical string) (models.Video, error) {
	videoID, err := youtube.ParseVideoID(canonical)
	if err != nil {
		return models.Video{}, err
	}

	params := store.CreateVideoParams{URL: canonical, VideoID: videoID}
	if s.metadata != nil {
		if meta, err := s.metadata.Fetch(ctx, canonical); err != nil {
			s.logger.Warn().Err(err).Str("url", canonical).Msg("metadata prefetch failed")
		} else {
			if meta.Title != "" {
				params.Title = &meta.Title
			}
			if meta.ChannelName != "" {
				params.ChannelName = &meta.ChannelName
			}
			if meta.ThumbnailURL != "" {
				thumb := meta.ThumbnailURL
				if s.thumbs != nil {
					if ingested, err := s.thumbs.Ingest(ctx, videoID, thumb); err != nil {
						s.logger.Warn().Err(err).Str("video_id", videoID).Msg("thumbnail ingest failed")
					} else {
						thumb = ingested
					}
				}
				params.ThumbnailURL = &thumb
			}
		}
	}

	video, created, err := s.store.CreateVideo(ctx, params)
	if err != nil {
		return models.Video{}, err
	}
	if !created {
		s.logger.Debug().Str("url", canonical).Msg("lost create race, using existing row")
	}
	return video, nil
}

// claim decides whether this submission runs the pipeline. All racing
// decisions funnel through the conditional status transition.
func (s *Service) claim(ctx context.Context, video models.Video, force bool) (SubmitResult, error) {
	from := ""
	switch video.ProcessingStatus {
	case models.StatusPending:
		from = models.StatusPending
	case models.StatusFailed:
		// Resubmission is the recovery path for failed jobs.
		from = models.StatusFailed
	case models.StatusCompleted:
		if !force {
			// Repeat submissions of completed work become reads. Refresh
			// recency signals so eviction treats this as a fresh access.
			if err := s.store.Touch(ctx, video.ID); err != nil {
				s.logger.Warn().Err(err).Str("id", video.ID).Msg("touch failed")
			}
			if s.cache != nil {
				if err := s.cache.Touch(ctx, video.VideoID); err != nil {
					s.logger.Warn().Err(err).Str("video_id", video.VideoID).Msg("cache touch failed")
				}
			}
			return SubmitResult{Video: video}, nil
		}
		// Explicit force refresh re-enters processing from completed.
		from = models.StatusCompleted
	case models.StatusProcessing:
		return SubmitResult{Video: video}, nil
	default:
		return SubmitResult{Video: video}, nil
	}

	won, err := s.store.TryTransition(ctx, video.ID, from, models.StatusProcessing)
	if err != nil {
		return SubmitResult{}, err
	}
	if !won {
		// Another submission claimed the job between our read and update.
		return SubmitResult{Video: video}, nil
	}

	video.ProcessingStatus = models.StatusProcessing
	task := s.launch(ctx, video)
	return SubmitResult{Video: video, Started: true, Task: task}, nil
}

// launch runs the pipeline body detached from the request context. The
// returned handle lets tests (or a future timeout wrapper) await completion;
// request handlers drop it.
func (s *Service) launch(ctx context.Context, video models.Video) *Task {
	task := &Task{done: make(chan struct{})}
	telemetry.PipelinesInFlight.Inc()

	// A disconnecting request must not cancel the detached run.
	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(task.done)
		defer telemetry.PipelinesInFlight.Dec()
		task.err = s.run(bg, video)
	}()
	return task
}

// run executes the strictly sequential stages: extract, summarize, persist.
// Any stage error aborts the rest and moves the job to failed.
func (s *Service) run(ctx context.Context, video models.Video) error {
	logger := s.logger.With().Str("id", video.ID).Str("video_id", video.VideoID).Logger()

	text, err := s.fetchTranscript(ctx, video, logger)
	if err != nil {
		s.fail(ctx, video.ID, err, logger)
		return err
	}
	if err := s.store.SetTranscript(ctx, video.ID, text); err != nil {
		s.fail(ctx, video.ID, err, logger)
		return err
	}

	result, err := s.summarizer.Summarize(ctx, text)
	if err != nil {
		s.fail(ctx, video.ID, err, logger)
		return err
	}

	if err := s.store.SetCompleted(ctx, video.ID, result.Title, result.Summary, result.Insights); err != nil {
		s.fail(ctx, video.ID, err, logger)
		return err
	}

	telemetry.PipelineCompleted.Inc()
	logger.Info().Int("transcript_len", len(text)).Msg("pipeline completed")
	return nil
}

func (s *Service) fetchTranscript(ctx context.Context, video models.Video, logger zerolog.Logger) (string, error) {
	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, video.VideoID); err != nil {
			logger.Warn().Err(err).Msg("transcript cache read failed")
		} else if ok {
			telemetry.TranscriptCacheHits.Inc()
			return cached, nil
		}
	}

	text, err := s.extractor.Fetch(ctx, video.URL)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, video.VideoID, text); err != nil {
			logger.Warn().Err(err).Msg("transcript cache write failed")
		}
	}
	return text, nil
}

// fail records the diagnostic and terminal status. The write itself is
// best-effort: its own failure is logged, not escalated.
func (s *Service) fail(ctx context.Context, id string, cause error, logger zerolog.Logger) {
	telemetry.PipelineFailed.Inc()
	logger.Error().Err(cause).Msg("pipeline failed")
	if err := s.store.SetFailed(ctx, id, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("failed to record failure status")
	}
}

// Task is the handle for a detached pipeline run.
type Task struct {
	done chan struct{}
	err  error
}

// Done is closed when the run finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the run finishes and returns its error, if any.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}
