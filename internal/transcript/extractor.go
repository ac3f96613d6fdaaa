package transcript

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ErrNoTranscript means the video exposes no caption tracks at all. Any other
// error from Fetch is a transient fetch/parse failure; the retry policy for
// those belongs to the caller, never to this package.
var ErrNoTranscript = errors.New("no transcript available for video")

// Extractor fetches a transcript for a canonical video URL.
type Extractor interface {
	Fetch(ctx context.Context, canonicalURL string) (string, error)
}

// HTTPExtractor scrapes the watch page for caption tracks and downloads the
// timedtext document for the first available track.
type HTTPExtractor struct {
	client *http.Client
}

func NewHTTPExtractor(client *http.Client) *HTTPExtractor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPExtractor{client: client}
}

var captionTracksPattern = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

func (e *HTTPExtractor) Fetch(ctx context.Context, canonicalURL string) (string, error) {
	page, err := e.get(ctx, canonicalURL)
	if err != nil {
		return "", fmt.Errorf("fetch watch page: %w", err)
	}

	match := captionTracksPattern.FindSubmatch(page)
	if match == nil {
		return "", ErrNoTranscript
	}

	var tracks []captionTrack
	if err := json.Unmarshal(match[1], &tracks); err != nil {
		return "", fmt.Errorf("parse caption tracks: %w", err)
	}
	if len(tracks) == 0 {
		return "", ErrNoTranscript
	}

	track := pickTrack(tracks)
	body, err := e.get(ctx, track.BaseURL)
	if err != nil {
		return "", fmt.Errorf("fetch timedtext: %w", err)
	}

	text, err := parseTimedText(body)
	if err != nil {
		return "", fmt.Errorf("parse timedtext: %w", err)
	}
	if text == "" {
		return "", ErrNoTranscript
	}
	return text, nil
}

func (e *HTTPExtractor) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept-Language", "en")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// pickTrack prefers a manually-authored English track over auto-generated
// ones, then falls back to whatever exists.
func pickTrack(tracks []captionTrack) captionTrack {
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") && t.Kind != "asr" {
			return t
		}
	}
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t
		}
	}
	return tracks[0]
}

type timedText struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

func parseTimedText(body []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", err
	}
	parts := make([]string, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		v := strings.TrimSpace(html.UnescapeString(t.Value))
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " "), nil
}
