package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

const (
	defaultThumbWidth  = 480
	maxThumbnailBytes  = 10 * 1024 * 1024
	thumbDownloadLimit = 15 * time.Second
)

// Uploader persists the processed thumbnail.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// ThumbnailIngester downloads the upstream thumbnail, downscales it to a
// standard width, and stores a copy in our blob store. Everything about it
// is best-effort: callers fall back to the upstream URL on any error.
type ThumbnailIngester struct {
	client *http.Client
	blob   Uploader
	width  int
}

func NewThumbnailIngester(client *http.Client, blob Uploader, width int) *ThumbnailIngester {
	if client == nil {
		client = &http.Client{Timeout: thumbDownloadLimit}
	}
	if width <= 0 {
		width = defaultThumbWidth
	}
	return &ThumbnailIngester{client: client, blob: blob, width: width}
}

// Ingest fetches, downscales, and uploads the thumbnail, returning its ref.
func (t *ThumbnailIngester) Ingest(ctx context.Context, videoID, thumbnailURL string) (string, error) {
	data, err := t.download(ctx, thumbnailURL)
	if err != nil {
		return "", err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode thumbnail: %w", err)
	}

	if img.Bounds().Dx() > t.width {
		img = imaging.Resize(img, t.width, 0, imaging.Lanczos)
	}

	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}

	key := fmt.Sprintf("thumbs/%s.jpg", videoID)
	ref, err := t.blob.Upload(ctx, key, buf.Bytes(), "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}
	return ref, nil
}

func (t *ThumbnailIngester) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("download thumbnail: status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxThumbnailBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read thumbnail: %w", err)
	}
	if int64(len(body)) > maxThumbnailBytes {
		return nil, fmt.Errorf("thumbnail too large (>%d bytes)", maxThumbnailBytes)
	}
	return body, nil
}
