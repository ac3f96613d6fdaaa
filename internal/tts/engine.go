package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tubebrief/internal/models"
	"tubebrief/internal/telemetry"
)

var (
	// ErrSynthesisTimeout means another request held the audio lock past the
	// polling bound without reaching a terminal status.
	ErrSynthesisTimeout = errors.New("timed out waiting for concurrent synthesis")
	// ErrSynthesisFailed means the lock winner recorded a failed synthesis;
	// resubmitting re-acquires the lock fresh.
	ErrSynthesisFailed = errors.New("concurrent synthesis failed")

	errStillProcessing = errors.New("synthesis still in progress")
)

// RecordStore is the slice of the store the engine depends on. The audio
// status column is the only coordination channel between concurrent requests.
type RecordStore interface {
	GetVideo(ctx context.Context, id string) (models.Video, error)
	TryAcquireAudioLock(ctx context.Context, id, section string) (bool, error)
	SetAudioResult(ctx context.Context, id, section, audioURL string) error
	SetAudioFailed(ctx context.Context, id, section string) error
}

// Uploader persists the assembled WAV file.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// EngineOptions bounds chunking, output format, and lock-contention polling.
type EngineOptions struct {
	SampleRate      int
	Channels        int
	BitDepth        int
	MinChunkSize    int
	PollInterval    time.Duration
	PollMaxAttempts int
}

func (o *EngineOptions) applyDefaults() {
	if o.SampleRate == 0 {
		o.SampleRate = 24000
	}
	if o.Channels == 0 {
		o.Channels = 1
	}
	if o.BitDepth == 0 {
		o.BitDepth = 16
	}
	if o.MinChunkSize == 0 {
		o.MinChunkSize = DefaultMinChunkSize
	}
	if o.PollInterval == 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.PollMaxAttempts == 0 {
		o.PollMaxAttempts = 30
	}
}

// Engine chunks text, synthesizes the chunks in parallel, assembles a single
// WAV file, uploads it, and finalizes the section's audio status. A
// conditional update on the status column guarantees at most one concurrent
// synthesis per (video, section).
type Engine struct {
	store  RecordStore
	synth  SpeechSynthesizer
	blob   Uploader
	opts   EngineOptions
	logger zerolog.Logger
}

func NewEngine(store RecordStore, synth SpeechSynthesizer, blob Uploader, opts EngineOptions, logger zerolog.Logger) *Engine {
	opts.applyDefaults()
	return &Engine{store: store, synth: synth, blob: blob, opts: opts, logger: logger}
}

// Synthesize produces the audio rendition for a video section and returns
// its artifact ref. Completed sections short-circuit to the stored ref.
// Losing the lock race means polling the winner's status instead.
func (e *Engine) Synthesize(ctx context.Context, videoID, section, text string) (string, error) {
	if !models.ValidSection(section) {
		return "", fmt.Errorf("unknown audio section %q", section)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no text to synthesize")
	}

	video, err := e.store.GetVideo(ctx, videoID)
	if err != nil {
		return "", err
	}
	if video.AudioStatusFor(section) == models.AudioCompleted {
		if ref := video.AudioURLFor(section); ref != nil {
			return *ref, nil
		}
	}

	won, err := e.store.TryAcquireAudioLock(ctx, videoID, section)
	if err != nil {
		return "", err
	}
	if !won {
		telemetry.TTSLockContention.Inc()
		e.logger.Debug().Str("video_id", videoID).Str("section", section).Msg("audio lock held, polling")
		return e.awaitWinner(ctx, videoID, section)
	}

	ref, err := e.run(ctx, videoID, section, text)
	if err != nil {
		telemetry.TTSFailures.Inc()
		// The lock must never stay stuck at processing, even when the failure
		// was the request's own cancellation: the release write runs on a
		// non-cancelable context so a client disconnect cannot strand the
		// section. Best-effort, so a broken store cannot mask the original
		// error.
		if ferr := e.store.SetAudioFailed(context.WithoutCancel(ctx), videoID, section); ferr != nil {
			e.logger.Error().Err(ferr).Str("video_id", videoID).Str("section", section).Msg("failed to record audio failure")
		}
		return "", err
	}

	telemetry.TTSSyntheses.Inc()
	return ref, nil
}

func (e *Engine) run(ctx context.Context, videoID, section, text string) (string, error) {
	chunks := SplitIntoChunks(text, e.opts.MinChunkSize)
	if len(chunks) == 0 {
		return "", errors.New("chunking produced no output")
	}

	// Chunks synthesize concurrently; the indexed slice keeps assembly order
	// independent of completion order.
	pcm := make([][]byte, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			audio, err := e.synth.Synthesize(gctx, chunk)
			if err != nil {
				return fmt.Errorf("synthesize chunk %d/%d: %w", i+1, len(chunks), err)
			}
			pcm[i] = audio
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	wav := NewWAVFile(MergePCMChunks(pcm), e.opts.SampleRate, e.opts.Channels, e.opts.BitDepth)

	key := fmt.Sprintf("%s_%s_%d.wav", videoID, section, time.Now().Unix())
	ref, err := e.blob.Upload(ctx, key, wav, "audio/wav")
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}

	// Synthesis and upload already succeeded; finalizing must not be lost to
	// a late request cancellation.
	if err := e.store.SetAudioResult(context.WithoutCancel(ctx), videoID, section, ref); err != nil {
		return "", fmt.Errorf("finalize audio: %w", err)
	}

	e.logger.Info().
		Str("video_id", videoID).
		Str("section", section).
		Int("chunks", len(chunks)).
		Int("bytes", len(wav)).
		Msg("audio synthesized")
	return ref, nil
}

// awaitWinner polls the section status at a fixed interval up to the
// configured bound, returning the winner's artifact once completed.
func (e *Engine) awaitWinner(ctx context.Context, videoID, section string) (string, error) {
	var ref string
	op := func() error {
		video, err := e.store.GetVideo(ctx, videoID)
		if err != nil {
			return backoff.Permanent(err)
		}
		switch video.AudioStatusFor(section) {
		case models.AudioCompleted:
			if u := video.AudioURLFor(section); u != nil {
				ref = *u
				return nil
			}
			return backoff.Permanent(errors.New("completed section has no audio ref"))
		case models.AudioFailed:
			return backoff.Permanent(ErrSynthesisFailed)
		default:
			return errStillProcessing
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.opts.PollInterval), uint64(e.opts.PollMaxAttempts)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, errStillProcessing) {
			return "", ErrSynthesisTimeout
		}
		return "", err
	}
	return ref, nil
}
