package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tubebrief/internal/api"
	"tubebrief/internal/blob"
	"tubebrief/internal/config"
	"tubebrief/internal/media"
	"tubebrief/internal/pipeline"
	"tubebrief/internal/ratelimit"
	"tubebrief/internal/store"
	"tubebrief/internal/summarize"
	"tubebrief/internal/transcript"
	"tubebrief/internal/tts"
	"tubebrief/internal/youtube"
)

func main() {
	cfg := config.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Env == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cache := transcript.NewCache(redisClient, cfg.TranscriptCacheTTL)
	limiter := ratelimit.NewTokenBucket(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	uploader, err := blob.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init blob store")
	}

	summarizer, err := summarize.NewGeminiSummarizer(summarize.GeminiOptions{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.SummarizeTimeout},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init summarizer")
	}

	speech, err := tts.NewGeminiSpeech(tts.GeminiSpeechOptions{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.TTSModel,
		Voice:      cfg.TTSVoice,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.SynthesizeTimeout},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init speech client")
	}

	extractor := transcript.NewHTTPExtractor(&http.Client{Timeout: cfg.ExtractTimeout})
	thumbs := media.NewThumbnailIngester(nil, uploader, cfg.ThumbnailWidth)
	metadata := youtube.NewOEmbedFetcher(nil)

	pipe := pipeline.New(st, extractor, summarizer, pipeline.Options{
		Cache:    cache,
		Metadata: metadata,
		Thumbs:   thumbs,
	}, logger)

	engine := tts.NewEngine(st, speech, uploader, tts.EngineOptions{
		SampleRate:      cfg.AudioSampleRate,
		Channels:        cfg.AudioChannels,
		BitDepth:        cfg.AudioBitDepth,
		MinChunkSize:    cfg.MinChunkSize,
		PollInterval:    cfg.AudioPollInterval,
		PollMaxAttempts: cfg.AudioPollMaxAttempts,
	}, logger)

	server := api.New(cfg, st, pipe, engine, limiter, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info().Str("port", cfg.HTTPPort).Msg("api listening")
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
