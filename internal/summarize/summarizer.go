package summarize

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Length bounds a model response must satisfy before acceptance.
const (
	TitleMinLen    = 10
	TitleMaxLen    = 100
	SummaryMinLen  = 200
	SummaryMaxLen  = 1000
	InsightsMinLen = 500
	InsightsMaxLen = 5000
)

// ErrMalformedOutput marks a model response that violates the schema or the
// length bounds. It is surfaced as a pipeline failure, never truncated or
// silently retried.
var ErrMalformedOutput = errors.New("malformed model output")

// Result is the structured summarization triple.
type Result struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Insights string `json:"insights"`
}

// Validate enforces the schema bounds on a decoded response. Bounds are in
// characters, not bytes, so non-ASCII output is counted fairly.
func (r Result) Validate() error {
	if n := utf8.RuneCountInString(r.Title); n < TitleMinLen || n > TitleMaxLen {
		return fmt.Errorf("%w: title length %d outside [%d,%d]", ErrMalformedOutput, n, TitleMinLen, TitleMaxLen)
	}
	if n := utf8.RuneCountInString(r.Summary); n < SummaryMinLen || n > SummaryMaxLen {
		return fmt.Errorf("%w: summary length %d outside [%d,%d]", ErrMalformedOutput, n, SummaryMinLen, SummaryMaxLen)
	}
	if n := utf8.RuneCountInString(r.Insights); n < InsightsMinLen || n > InsightsMaxLen {
		return fmt.Errorf("%w: insights length %d outside [%d,%d]", ErrMalformedOutput, n, InsightsMinLen, InsightsMaxLen)
	}
	return nil
}

// Summarizer produces a title/summary/insights triple from transcript text.
// Implementations take the full transcript as context; bounding or rejecting
// oversized input is the caller's concern.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (Result, error)
}
