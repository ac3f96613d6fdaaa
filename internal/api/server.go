package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tubebrief/internal/config"
	"tubebrief/internal/models"
	"tubebrief/internal/pipeline"
	"tubebrief/internal/ratelimit"
	"tubebrief/internal/store"
	"tubebrief/internal/telemetry"
	"tubebrief/internal/tts"
	"tubebrief/internal/youtube"
)

// Submitter accepts a URL and resolves it to a job, possibly starting the
// pipeline detached from the request.
type Submitter interface {
	Submit(ctx context.Context, rawURL string, force bool) (pipeline.SubmitResult, error)
}

// Synthesizer produces (or resolves) the audio rendition for a job section.
type Synthesizer interface {
	Synthesize(ctx context.Context, videoID, section, text string) (string, error)
}

// VideoReader serves job state for polling clients.
type VideoReader interface {
	GetVideo(ctx context.Context, id string) (models.Video, error)
}

// Server wires the HTTP surface over the pipeline and TTS engine.
type Server struct {
	cfg     config.Config
	videos  VideoReader
	pipe    Submitter
	synth   Synthesizer
	limiter *ratelimit.TokenBucket
	logger  zerolog.Logger
}

// New constructs the API server. The limiter is optional.
func New(cfg config.Config, videos VideoReader, pipe Submitter, synth Synthesizer, limiter *ratelimit.TokenBucket, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		videos:  videos,
		pipe:    pipe,
		synth:   synth,
		limiter: limiter,
		logger:  logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/process", s.handleProcess)
	r.Post("/tts", s.handleTTS)
	r.Get("/videos/{id}", s.handleGetVideo)
	return r
}

type processRequest struct {
	URL   string `json:"url"`
	Force bool   `json:"force"`
}

type processResponse struct {
	ID               string `json:"id"`
	ProcessingStatus string `json:"processing_status"`
	Started          bool   `json:"started"`
}

// handleProcess accepts a URL and returns 202 immediately; the pipeline body
// keeps running after the response is written.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), "rl:"+clientKey(r))
		if err != nil {
			s.logger.Error().Err(err).Msg("rate limiter unavailable")
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	res, err := s.pipe.Submit(r.Context(), req.URL, req.Force)
	if err != nil {
		if errors.Is(err, youtube.ErrInvalidURL) || errors.Is(err, youtube.ErrUnsupportedSource) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error().Err(err).Str("url", req.URL).Msg("submit failed")
		http.Error(w, "submit failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, processResponse{
		ID:               res.Video.ID,
		ProcessingStatus: res.Video.ProcessingStatus,
		Started:          res.Started,
	})
}

type ttsRequest struct {
	JobID   string `json:"job_id"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

type ttsResponse struct {
	AudioURL string `json:"audio_url"`
}

// handleTTS synthesizes (or resolves) the audio for a job section. Lock
// losers block polling inside the engine; 408 signals the polling bound was
// exceeded and the client should retry later.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.JobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}
	if !models.ValidSection(req.Section) {
		http.Error(w, "section must be summary or insights", http.StatusBadRequest)
		return
	}

	text := req.Text
	if text == "" {
		// Fall back to the stored section text from the completed pipeline.
		video, err := s.videos.GetVideo(r.Context(), req.JobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		if req.Section == models.SectionInsights {
			text = video.Insights
		} else {
			text = video.Summary
		}
		if text == "" {
			http.Error(w, "section text not available yet", http.StatusConflict)
			return
		}
	}

	audioURL, err := s.synth.Synthesize(r.Context(), req.JobID, req.Section, text)
	if err != nil {
		switch {
		case errors.Is(err, tts.ErrSynthesisTimeout):
			http.Error(w, "synthesis in progress, timed out waiting", http.StatusRequestTimeout)
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "job not found", http.StatusNotFound)
		default:
			s.logger.Error().Err(err).Str("job_id", req.JobID).Str("section", req.Section).Msg("synthesis failed")
			http.Error(w, "synthesis failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, ttsResponse{AudioURL: audioURL})
}

// handleGetVideo serves job state; clients poll this (status columns are the
// source of truth, there is no synchronous pipeline answer).
func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	video, err := s.videos.GetVideo(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, video)
}

func clientKey(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		return v
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
