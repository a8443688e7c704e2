package speech

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithVoice sets the voice used when Synthesize gets an empty voice id.
func WithVoice(voice string) AzureOption {
	return func(c *AzureClient) {
		c.voice = voice
	}
}

// WithAudioFormat sets the audio output format.
func WithAudioFormat(format string) AzureOption {
	return func(c *AzureClient) {
		c.format = format
	}
}

// WithHTTPTimeout sets the HTTP client timeout for TTS requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) {
		c.httpClient.Timeout = d
	}
}

// WithAzureEndpoint overrides the regional endpoint (tests, sovereign clouds).
func WithAzureEndpoint(url string) AzureOption {
	return func(c *AzureClient) {
		c.endpoint = url
	}
}

// AzureClient handles text-to-speech synthesis via Azure Cognitive Services.
type AzureClient struct {
	subscriptionKey string
	endpoint        string
	voice           string
	format          string
	httpClient      *http.Client
	log             *logger.Logger
}

var _ domain.SpeechSynthesizer = (*AzureClient)(nil)

// NewAzureClient creates an Azure TTS client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		subscriptionKey: key,
		endpoint:        fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region),
		voice:           DefaultVoice,
		format:          DefaultAudioFormat,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ContentType implements domain.SpeechSynthesizer.
func (c *AzureClient) ContentType() string { return contentTypeFor(c.format) }

// Synthesize converts text to speech audio. An empty voiceID uses the
// configured voice.
func (c *AzureClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	voice := voiceID
	if voice == "" {
		voice = c.voice
	}
	ssml, err := buildSSML(voice, text)
	if err != nil {
		return nil, fmt.Errorf("building ssml: %w", err)
	}
	c.log.Debug("azure tts: synthesizing %d chars with voice %s", len(text), voice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", c.format)
	req.Header.Set("User-Agent", "Guardian/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: azure tts request failed: %w", domain.ErrService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: azure tts error %d: %s", domain.ErrService, resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading audio data: %w", domain.ErrService, err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: azure tts returned no audio", domain.ErrService)
	}

	c.log.Debug("azure tts: got %d bytes of audio", len(audioData))
	return audioData, nil
}

// buildSSML creates SSML markup for the synthesis request. Story text comes
// from a language model, so it is escaped.
func buildSSML(voice, text string) (string, error) {
	var b strings.Builder
	b.WriteString(`<speak version='1.0' xml:lang='en-US'><voice xml:lang='en-US' name='`)
	if err := xml.EscapeText(&b, []byte(voice)); err != nil {
		return "", err
	}
	b.WriteString(`'><prosody rate='-10%'>`)
	if err := xml.EscapeText(&b, []byte(text)); err != nil {
		return "", err
	}
	b.WriteString(`</prosody></voice></speak>`)
	return b.String(), nil
}
