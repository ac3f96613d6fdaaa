package models

import (
	"time"
)

// ProcessingStatus enumerates pipeline lifecycle states persisted in Postgres.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// AudioStatus enumerates per-section audio synthesis states.
const (
	AudioNone       = "none"
	AudioProcessing = "processing"
	AudioCompleted  = "completed"
	AudioFailed     = "failed"
)

// Audio sections a video exposes for synthesis.
const (
	SectionSummary  = "summary"
	SectionInsights = "insights"
)

// Video is the single job record per canonical source URL.
type Video struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	VideoID          string    `json:"video_id"`
	Title            *string   `json:"title,omitempty"`
	ChannelName      *string   `json:"channel_name,omitempty"`
	ThumbnailURL     *string   `json:"thumbnail_url,omitempty"`
	Transcript       string    `json:"transcript"`
	Summary          string    `json:"summary"`
	Insights         string    `json:"insights"`
	ProcessingStatus string    `json:"processing_status"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
	SummaryAudioURL  *string   `json:"summary_audio_url,omitempty"`
	SummaryAudio     string    `json:"summary_audio_status"`
	InsightsAudioURL *string   `json:"insights_audio_url,omitempty"`
	InsightsAudio    string    `json:"insights_audio_status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// AudioStatusFor returns the audio sub-state for a section.
func (v Video) AudioStatusFor(section string) string {
	if section == SectionInsights {
		return v.InsightsAudio
	}
	return v.SummaryAudio
}

// AudioURLFor returns the stored artifact location for a section, if any.
func (v Video) AudioURLFor(section string) *string {
	if section == SectionInsights {
		return v.InsightsAudioURL
	}
	return v.SummaryAudioURL
}

// ValidSection reports whether a section name maps to an audio column pair.
func ValidSection(section string) bool {
	return section == SectionSummary || section == SectionInsights
}
