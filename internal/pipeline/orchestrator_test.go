package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tubebrief/internal/models"
	"tubebrief/internal/store"
	"tubebrief/internal/summarize"
)

// memStore mimics the Postgres row semantics the orchestrator relies on:
// URL uniqueness on insert and conditional status transitions.
type memStore struct {
	mu      sync.Mutex
	byID    map[string]models.Video
	byURL   map[string]string
	touches int
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]models.Video), byURL: make(map[string]string)}
}

func (m *memStore) GetVideo(_ context.Context, id string) (models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok {
		return models.Video{}, store.ErrNotFound
	}
	return v, nil
}

func (m *memStore) GetVideoByURL(_ context.Context, url string) (models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byURL[url]
	if !ok {
		return models.Video{}, store.ErrNotFound
	}
	return m.byID[id], nil
}

func (m *memStore) CreateVideo(_ context.Context, p store.CreateVideoParams) (models.Video, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byURL[p.URL]; ok {
		return m.byID[id], false, nil
	}
	v := models.Video{
		ID:               uuid.New().String(),
		URL:              p.URL,
		VideoID:          p.VideoID,
		Title:            p.Title,
		ChannelName:      p.ChannelName,
		ThumbnailURL:     p.ThumbnailURL,
		ProcessingStatus: models.StatusPending,
		SummaryAudio:     models.AudioNone,
		InsightsAudio:    models.AudioNone,
	}
	m.byID[v.ID] = v
	m.byURL[v.URL] = v.ID
	return v, true, nil
}

func (m *memStore) TryTransition(_ context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[id]
	if !ok || v.ProcessingStatus != from {
		return false, nil
	}
	v.ProcessingStatus = to
	m.byID[id] = v
	return true, nil
}

func (m *memStore) SetTranscript(_ context.Context, id, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.byID[id]
	v.Transcript = transcript
	m.byID[id] = v
	return nil
}

func (m *memStore) SetCompleted(_ context.Context, id, title, summary, insights string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.byID[id]
	v.Title = &title
	v.Summary = summary
	v.Insights = insights
	v.ProcessingStatus = models.StatusCompleted
	v.ErrorMessage = nil
	m.byID[id] = v
	return nil
}

func (m *memStore) SetFailed(_ context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.byID[id]
	v.ProcessingStatus = models.StatusFailed
	v.ErrorMessage = &message
	m.byID[id] = v
	return nil
}

func (m *memStore) Touch(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touches++
	return nil
}

type fakeExtractor struct {
	calls int32
	text  string
	err   error
}

func (f *fakeExtractor) Fetch(_ context.Context, _ string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeSummarizer struct {
	calls int32
	err   error
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string) (summarize.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return summarize.Result{}, f.err
	}
	return summarize.Result{
		Title:    "A Reasonable Generated Title",
		Summary:  strings.Repeat("Summary sentence. ", 16),
		Insights: strings.Repeat("Insight sentence. ", 32),
	}, nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]string
	touches int
}

func newMemCache() *memCache { return &memCache{entries: make(map[string]string)} }

func (c *memCache) Get(_ context.Context, videoID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[videoID]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, videoID, transcript string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[videoID] = transcript
	return nil
}

func (c *memCache) Touch(_ context.Context, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touches++
	return nil
}

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func newService(st RecordStore, ext *fakeExtractor, sum *fakeSummarizer, cache TranscriptCache) *Service {
	return New(st, ext, sum, Options{Cache: cache}, zerolog.Nop())
}

func TestSubmitNewURLRunsPipeline(t *testing.T) {
	st := newMemStore()
	ext := &fakeExtractor{text: "the transcript"}
	sum := &fakeSummarizer{}
	svc := newService(st, ext, sum, nil)

	res, err := svc.Submit(context.Background(), "https://youtu.be/dQw4w9WgXcQ?si=x", false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Started || res.Task == nil {
		t.Fatal("expected a started pipeline with a task handle")
	}
	if res.Video.ProcessingStatus != models.StatusProcessing {
		t.Fatalf("status = %s, want processing", res.Video.ProcessingStatus)
	}

	if err := res.Task.Wait(); err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	v, err := st.GetVideo(context.Background(), res.Video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.ProcessingStatus != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", v.ProcessingStatus)
	}
	if v.URL != testURL {
		t.Fatalf("stored url = %q, want canonical %q", v.URL, testURL)
	}
	if v.Transcript != "the transcript" {
		t.Fatalf("transcript = %q", v.Transcript)
	}
	if v.Summary == "" || v.Insights == "" || v.Title == nil {
		t.Fatal("summarization output not persisted")
	}
}

func TestSubmitConcurrentSingleExecution(t *testing.T) {
	st := newMemStore()
	ext := &fakeExtractor{text: "the transcript"}
	sum := &fakeSummarizer{}
	svc := newService(st, ext, sum, nil)

	// Different raw shapes of the same video, submitted concurrently.
	urls := []string{
		testURL,
		"https://youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=10s",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ",
	}

	const rounds = 5
	results := make([]SubmitResult, len(urls)*rounds)
	var wg sync.WaitGroup
	for r := 0; r < rounds; r++ {
		for i, u := range urls {
			wg.Add(1)
			go func(slot int, u string) {
				defer wg.Done()
				res, err := svc.Submit(context.Background(), u, false)
				if err != nil {
					t.Errorf("submit %s: %v", u, err)
					return
				}
				results[slot] = res
			}(r*len(urls)+i, u)
		}
	}
	wg.Wait()

	var started int
	for _, res := range results {
		if res.Started {
			started++
			if err := res.Task.Wait(); err != nil {
				t.Fatalf("pipeline: %v", err)
			}
		}
	}
	if started != 1 {
		t.Fatalf("started %d pipelines, want exactly 1", started)
	}
	if n := atomic.LoadInt32(&ext.calls); n != 1 {
		t.Fatalf("extraction ran %d times, want 1", n)
	}
	if n := atomic.LoadInt32(&sum.calls); n != 1 {
		t.Fatalf("summarization ran %d times, want 1", n)
	}
	if len(st.byID) != 1 {
		t.Fatalf("%d rows created, want 1", len(st.byID))
	}

	// All submissions resolve to the same job identity.
	first := results[0].Video.ID
	for _, res := range results {
		if res.Video.ID != first {
			t.Fatalf("observed two job ids: %s and %s", first, res.Video.ID)
		}
	}
}

func TestSubmitCompletedShortCircuits(t *testing.T) {
	st := newMemStore()
	ext := &fakeExtractor{text: "t"}
	sum := &fakeSummarizer{}
	cache := newMemCache()
	svc := newService(st, ext, sum, cache)

	res, err := svc.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := res.Task.Wait(); err != nil {
		t.Fatal(err)
	}

	res2, err := svc.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Started {
		t.Fatal("completed job must not be reprocessed")
	}
	if n := atomic.LoadInt32(&ext.calls); n != 1 {
		t.Fatalf("extraction ran %d times, want 1", n)
	}
	if st.touches != 1 {
		t.Fatalf("row touches = %d, want 1", st.touches)
	}
	if cache.touches != 1 {
		t.Fatalf("cache touches = %d, want 1", cache.touches)
	}
}

func TestSubmitForceRefreshReprocesses(t *testing.T) {
	st := newMemStore()
	ext := &fakeExtractor{text: "t"}
	sum := &fakeSummarizer{}
	svc := newService(st, ext, sum, nil)

	res, _ := svc.Submit(context.Background(), testURL, false)
	_ = res.Task.Wait()

	res2, err := svc.Submit(context.Background(), testURL, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res2.Started {
		t.Fatal("force refresh must re-enter processing")
	}
	if err := res2.Task.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&ext.calls); n != 2 {
		t.Fatalf("extraction ran %d times, want 2", n)
	}
}

func TestSubmitWhileProcessing(t *testing.T) {
	st := newMemStore()
	v, _, _ := st.CreateVideo(context.Background(), store.CreateVideoParams{URL: testURL, VideoID: "dQw4w9WgXcQ"})
	_, _ = st.TryTransition(context.Background(), v.ID, models.StatusPending, models.StatusProcessing)

	ext := &fakeExtractor{text: "t"}
	svc := newService(st, ext, &fakeSummarizer{}, nil)

	res, err := svc.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Started {
		t.Fatal("in-flight job must not start a second pipeline")
	}
	if atomic.LoadInt32(&ext.calls) != 0 {
		t.Fatal("extraction must not run for an in-flight job")
	}
}

func TestPipelineFailureAndRecovery(t *testing.T) {
	st := newMemStore()
	ext := &fakeExtractor{err: errors.New("transcript fetch timed out")}
	sum := &fakeSummarizer{}
	svc := newService(st, ext, sum, nil)

	res, err := svc.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatal(err)
	}
	if werr := res.Task.Wait(); werr == nil {
		t.Fatal("expected pipeline failure")
	}

	v, _ := st.GetVideo(context.Background(), res.Video.ID)
	if v.ProcessingStatus != models.StatusFailed {
		t.Fatalf("status = %s, want failed", v.ProcessingStatus)
	}
	if v.ErrorMessage == nil || *v.ErrorMessage == "" {
		t.Fatal("failed job must carry a diagnostic message")
	}
	if atomic.LoadInt32(&sum.calls) != 0 {
		t.Fatal("summarization must not run after extraction failure")
	}

	// Resubmission is the recovery path from failed.
	ext.err = nil
	ext.text = "recovered transcript"
	res2, err := svc.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res2.Started {
		t.Fatal("resubmission of a failed job must restart the pipeline")
	}
	if err := res2.Task.Wait(); err != nil {
		t.Fatalf("recovery run: %v", err)
	}
	v, _ = st.GetVideo(context.Background(), res.Video.ID)
	if v.ProcessingStatus != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", v.ProcessingStatus)
	}
	if v.ErrorMessage != nil {
		t.Fatal("diagnostic message must clear on success")
	}
}

func TestPipelineUsesTranscriptCache(t *testing.T) {
	st := newMemStore()
	ext := &fakeExtractor{text: "fresh"}
	cache := newMemCache()
	_ = cache.Set(context.Background(), "dQw4w9WgXcQ", "cached transcript")
	svc := newService(st, ext, &fakeSummarizer{}, cache)

	res, err := svc.Submit(context.Background(), testURL, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := res.Task.Wait(); err != nil {
		t.Fatal(err)
	}

	if atomic.LoadInt32(&ext.calls) != 0 {
		t.Fatal("cache hit must skip extraction")
	}
	v, _ := st.GetVideo(context.Background(), res.Video.ID)
	if v.Transcript != "cached transcript" {
		t.Fatalf("transcript = %q", v.Transcript)
	}
}

func TestSubmitInvalidURL(t *testing.T) {
	svc := newService(newMemStore(), &fakeExtractor{}, &fakeSummarizer{}, nil)

	if _, err := svc.Submit(context.Background(), "https://example.com/watch?v=dQw4w9WgXcQ", false); err == nil {
		t.Fatal("unsupported host accepted")
	}
	if _, err := svc.Submit(context.Background(), "https://www.youtube.com/watch?v=nope", false); err == nil {
		t.Fatal("invalid video id accepted")
	}
}
