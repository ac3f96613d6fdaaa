package youtube

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrInvalidURL means the input parsed but carries no usable video ID.
	ErrInvalidURL = errors.New("no video id found in url")
	// ErrUnsupportedSource means the host is not a recognized YouTube domain.
	ErrUnsupportedSource = errors.New("unsupported video source")
)

// Video IDs are fixed-length opaque tokens.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Canonicalize reduces an arbitrary user-supplied YouTube URL to its canonical
// watch form, stripping every query parameter except the video identifier.
// It is a pure function: equal inputs (mod whitespace and host case) always
// yield equal outputs, which is what the uniqueness constraint keys on.
func Canonicalize(raw string) (string, error) {
	id, err := ParseVideoID(raw)
	if err != nil {
		return "", err
	}
	return "https://www.youtube.com/watch?v=" + id, nil
}

// ParseVideoID extracts the 11-character video identifier from any of the
// supported URL shapes: watch, youtu.be, shorts, embed, live.
func ParseVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, err)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtube.com", "music.youtube.com":
		id = idFromPath(u)
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedSource, host)
	}

	if !videoIDPattern.MatchString(id) {
		return "", ErrInvalidURL
	}
	return id, nil
}

func idFromPath(u *url.URL) string {
	path := strings.Trim(u.Path, "/")
	switch {
	case path == "watch":
		return u.Query().Get("v")
	case strings.HasPrefix(path, "shorts/"):
		return strings.TrimPrefix(path, "shorts/")
	case strings.HasPrefix(path, "embed/"):
		return strings.TrimPrefix(path, "embed/")
	case strings.HasPrefix(path, "live/"):
		return strings.TrimPrefix(path, "live/")
	}
	return ""
}
