package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Metadata is the best-effort denormalized video info attached at creation.
type Metadata struct {
	Title        string `json:"title"`
	ChannelName  string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// MetadataFetcher resolves display metadata for a canonical video URL.
type MetadataFetcher interface {
	Fetch(ctx context.Context, canonicalURL string) (Metadata, error)
}

// OEmbedFetcher pulls title/channel/thumbnail from the public oEmbed endpoint.
// No API key required; failures are non-fatal to callers.
type OEmbedFetcher struct {
	client  *http.Client
	baseURL string
}

func NewOEmbedFetcher(client *http.Client) *OEmbedFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OEmbedFetcher{client: client, baseURL: "https://www.youtube.com/oembed"}
}

// WithBaseURL overrides the oEmbed endpoint, used by tests.
func (f *OEmbedFetcher) WithBaseURL(base string) *OEmbedFetcher {
	f.baseURL = base
	return f
}

func (f *OEmbedFetcher) Fetch(ctx context.Context, canonicalURL string) (Metadata, error) {
	endpoint := f.baseURL + "?format=json&url=" + url.QueryEscape(canonicalURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("build oembed request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch oembed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("fetch oembed: status %d", resp.StatusCode)
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return Metadata{}, fmt.Errorf("decode oembed: %w", err)
	}
	return meta, nil
}
