package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// ElevenLabsOption configures the ElevenLabs client.
type ElevenLabsOption func(*ElevenLabsClient)

// WithElevenLabsVoice sets the default voice id.
func WithElevenLabsVoice(id string) ElevenLabsOption {
	return func(c *ElevenLabsClient) { c.voice = id }
}

// WithElevenLabsModel sets the synthesis model.
func WithElevenLabsModel(model string) ElevenLabsOption {
	return func(c *ElevenLabsClient) { c.model = model }
}

// WithElevenLabsBaseURL overrides the API host.
func WithElevenLabsBaseURL(url string) ElevenLabsOption {
	return func(c *ElevenLabsClient) { c.baseURL = url }
}

// WithElevenLabsTimeout sets the HTTP client timeout.
func WithElevenLabsTimeout(d time.Duration) ElevenLabsOption {
	return func(c *ElevenLabsClient) { c.httpClient.Timeout = d }
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type elevenRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// ElevenLabsClient narrates text through the ElevenLabs API, returning MP3.
type ElevenLabsClient struct {
	apiKey     string
	baseURL    string
	voice      string
	model      string
	httpClient *http.Client
	log        *logger.Logger
}

var _ domain.SpeechSynthesizer = (*ElevenLabsClient)(nil)

// NewElevenLabsClient creates a client.
func NewElevenLabsClient(apiKey string, log *logger.Logger, opts ...ElevenLabsOption) *ElevenLabsClient {
	c := &ElevenLabsClient{
		apiKey:     apiKey,
		baseURL:    ElevenLabsBaseURL,
		voice:      DefaultElevenLabsVoice,
		model:      DefaultElevenLabsModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContentType implements domain.SpeechSynthesizer.
func (c *ElevenLabsClient) ContentType() string { return "audio/mpeg" }

// Synthesize implements domain.SpeechSynthesizer.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	voice := voiceID
	if voice == "" {
		voice = c.voice
	}

	body, err := json.Marshal(elevenRequest{
		Text:          text,
		ModelID:       c.model,
		VoiceSettings: voiceSettings{Stability: 0.6, SimilarityBoost: 0.75},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	c.log.Debug("elevenlabs: synthesizing %d chars with voice %s", len(text), voice)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: elevenlabs request failed: %w", domain.ErrService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: elevenlabs %s: %s", domain.ErrService, resp.Status, string(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: elevenlabs read: %w", domain.ErrService, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: elevenlabs returned no audio", domain.ErrService)
	}
	c.log.Debug("elevenlabs: got %d bytes of audio", len(audio))
	return audio, nil
}
