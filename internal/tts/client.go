package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SpeechSynthesizer turns a text chunk into raw PCM audio samples.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

const speechDefaultTimeout = 60 * time.Second

// GeminiSpeechOptions configures the Gemini speech synthesis client.
type GeminiSpeechOptions struct {
	APIKey     string
	Model      string
	Voice      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiSpeech calls the Generative Language API in audio-response mode.
// The API returns base64-encoded raw PCM (24 kHz mono s16le) in inlineData.
type GeminiSpeech struct {
	apiKey  string
	model   string
	voice   string
	baseURL string
	client  *http.Client
}

func NewGeminiSpeech(opts GeminiSpeechOptions) (*GeminiSpeech, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash-preview-tts"
	}
	voice := strings.TrimSpace(opts.Voice)
	if voice == "" {
		voice = "Kore"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: speechDefaultTimeout}
	}
	return &GeminiSpeech{
		apiKey:  opts.APIKey,
		model:   model,
		voice:   voice,
		baseURL: baseURL,
		client:  client,
	}, nil
}

type speechRequest struct {
	Contents         []speechContent     `json:"contents"`
	GenerationConfig *speechGenerationCg `json:"generationConfig,omitempty"`
}

type speechContent struct {
	Role  string       `json:"role"`
	Parts []speechPart `json:"parts"`
}

type speechPart struct {
	Text string `json:"text,omitempty"`
}

type speechGenerationCg struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type speechResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *GeminiSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	sc := &speechConfig{}
	sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = g.voice

	payload := speechRequest{
		Contents: []speechContent{{
			Role:  "user",
			Parts: []speechPart{{Text: text}},
		}},
		GenerationConfig: &speechGenerationCg{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       sc,
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call speech api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech api status %d", resp.StatusCode)
	}

	var decoded speechResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("speech api returned no audio")
	}

	data := decoded.Candidates[0].Content.Parts[0].InlineData.Data
	if data == "" {
		return nil, errors.New("speech api returned empty audio payload")
	}
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	return pcm, nil
}
