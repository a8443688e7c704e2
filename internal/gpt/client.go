// Package gpt provides an OpenAI-compatible chat client used to write the
// lullaby stories. It works against OpenAI, Azure OpenAI deployments and
// Gemini's OpenAI-compatible endpoint.
package gpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// ── Wire types ───────────────────────────────────────────────────

// Role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// payload is the request body sent to the chat-completions endpoint.
type payload struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	MaxTokens   int       `json:"max_tokens"`
	Model       string    `json:"model,omitempty"`
}

// apiResponse is the top-level response envelope.
type apiResponse struct {
	Choices []choice `json:"choices"`
}

type choice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

// ── Client ───────────────────────────────────────────────────────

// AuthStyle selects how the API key is sent.
type AuthStyle string

const (
	// AuthAPIKey sends an "api-key" header (Azure OpenAI).
	AuthAPIKey AuthStyle = "api-key"
	// AuthBearer sends "Authorization: Bearer" (OpenAI, Gemini).
	AuthBearer AuthStyle = "bearer"
)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithModel overrides the default model name.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) { c.temperature = t }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

// WithHTTPTimeout sets the HTTP client timeout.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithAuthStyle picks the auth header.
func WithAuthStyle(s AuthStyle) ClientOption {
	return func(c *Client) { c.auth = s }
}

// WithSystemPrompt replaces the storyteller persona.
func WithSystemPrompt(p string) ClientOption {
	return func(c *Client) { c.system = p }
}

// WithHTTPClient swaps the transport, e.g. for otelhttp.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	topP        float64
	maxTokens   int
	auth        AuthStyle
	system      string
	http        *http.Client
	log         *logger.Logger
}

var _ domain.TextGenerator = (*Client)(nil)

// NewClient creates a chat client.
//   - endpoint: full URL to the chat/completions resource
//   - apiKey:   the subscription / API key
func NewClient(endpoint, apiKey string, log *logger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    endpoint,
		apiKey:      apiKey,
		model:       "", // omitted for Azure deployments
		temperature: 0.9,
		topP:        0.95,
		maxTokens:   600,
		auth:        AuthAPIKey,
		system:      PromptStoryteller,
		http:        &http.Client{Timeout: 30 * time.Second},
		log:         log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GenerateText implements domain.TextGenerator with the storyteller persona
// as the system message.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	reply, err := c.Chat(ctx, []Message{
		{Role: RoleSystem, Content: c.system},
		{Role: RoleUser, Content: prompt},
	})
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: gpt: empty reply", domain.ErrService)
	}
	return reply, nil
}

// Chat sends a chat-completion request and returns the assistant's reply.
// Every failure wraps domain.ErrService.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	body := payload{
		Messages:    messages,
		Temperature: c.temperature,
		TopP:        c.topP,
		MaxTokens:   c.maxTokens,
		Model:       c.model,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("gpt: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("gpt: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth == AuthBearer {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	} else {
		req.Header.Set("api-key", c.apiKey)
	}

	c.log.Debug("gpt: POST %s (%d bytes)", c.endpoint, len(jsonData))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: gpt: request failed: %w", domain.ErrService, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: gpt: read response: %w", domain.ErrService, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: gpt: API %s: %s", domain.ErrService, resp.Status, truncate(string(respBody), 200))
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: gpt: unmarshal response: %v", domain.ErrService, err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: gpt: empty response (no choices)", domain.ErrService)
	}

	reply := result.Choices[0].Message.Content
	c.log.Debug("gpt: reply (%d chars): %s", len(reply), truncate(reply, 120))
	return reply, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
