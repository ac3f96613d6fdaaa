package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SubmissionsTotal    = prometheus.NewCounter(prometheus.CounterOpts{Name: "videos_submitted_total", Help: "URLs accepted by the process endpoint"})
	DedupHits           = prometheus.NewCounter(prometheus.CounterOpts{Name: "videos_dedup_hits_total", Help: "Submissions short-circuited by an existing job"})
	PipelineCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "videos_completed_total", Help: "Pipelines that reached completed"})
	PipelineFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "videos_failed_total", Help: "Pipelines that reached failed"})
	PipelinesInFlight   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "videos_pipelines_inflight", Help: "Pipelines currently processing"})
	TranscriptCacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "transcript_cache_hits_total", Help: "Transcript extractions served from cache"})
	RateLimitRejects    = prometheus.NewCounter(prometheus.CounterOpts{Name: "process_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	TTSSyntheses        = prometheus.NewCounter(prometheus.CounterOpts{Name: "tts_syntheses_total", Help: "Audio syntheses performed"})
	TTSFailures         = prometheus.NewCounter(prometheus.CounterOpts{Name: "tts_failures_total", Help: "Audio syntheses that failed"})
	TTSLockContention   = prometheus.NewCounter(prometheus.CounterOpts{Name: "tts_lock_contention_total", Help: "Synthesis requests that lost the audio lock and polled"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			DedupHits,
			PipelineCompleted,
			PipelineFailed,
			PipelinesInFlight,
			TranscriptCacheHits,
			RateLimitRejects,
			TTSSyntheses,
			TTSFailures,
			TTSLockContention,
		)
	})
	return promhttp.Handler()
}
