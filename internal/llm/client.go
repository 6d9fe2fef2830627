// Package llm transcribes page images through an OpenAI-compatible
// chat-completions endpoint (vLLM, OpenRouter and similar gateways).
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/observability"
	"github.com/spherical/docparser/internal/transcript"
)

const (
	DefaultBaseURL   = "http://localhost:8000/v1"
	DefaultModel     = "infly/Infinity-Parser-7B"
	DefaultPrompt    = "Please transform the document's contents into Markdown format."
	DefaultMaxTokens = 4096
	DefaultTimeout   = 5 * time.Minute

	maxErrorBody = 512
)

// Config holds the endpoint settings.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Prompt    string
	MaxTokens int
	Timeout   time.Duration
	Referer   string
	Title     string

	// RejectRefusals fails the page when the reply is a canned refusal.
	// Otherwise the reply is logged and returned as the page text.
	RejectRefusals bool
}

// Client handles communication with the chat-completions endpoint
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      *RetryConfig
	logger     *observability.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryConfig replaces the retry policy.
func WithRetryConfig(rc *RetryConfig) Option {
	return func(c *Client) { c.retry = rc }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Stream    bool      `json:"stream"`
}

// Response represents the API response structure
type Response struct {
	ID      string    `json:"id"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError is the error object some gateways embed in a response or stream.
type APIError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewClient creates a new LLM client
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      DefaultRetryConfig(),
		logger:     observability.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Transcribe sends one page image and returns its Markdown.
func (c *Client) Transcribe(ctx context.Context, page domain.PageImage) (string, error) {
	req, err := c.buildRequest(page)
	if err != nil {
		return "", domain.InferenceError("failed to build request", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.InferenceError("failed to marshal request", err)
	}

	start := time.Now()
	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		if c.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		if c.cfg.Referer != "" {
			httpReq.Header.Set("HTTP-Referer", c.cfg.Referer)
		}
		if c.cfg.Title != "" {
			httpReq.Header.Set("X-Title", c.cfg.Title)
		}

		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return "", domain.InferenceError("transcription request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", domain.InferenceError(
			fmt.Sprintf("model endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))), nil)
	}

	raw, finish, err := c.readResponse(resp)
	if err != nil {
		return "", err
	}

	if finish == "length" {
		c.logger.Warn().
			Int("page", page.Index).
			Int("max_tokens", c.cfg.MaxTokens).
			Msg("Transcription truncated at token limit")
	}

	md := transcript.Clean(raw)
	if transcript.IsRefusal(md) {
		if c.cfg.RejectRefusals {
			return "", domain.InferenceError(fmt.Sprintf("model refused to transcribe page %d", page.Index), nil)
		}
		c.logger.Warn().
			Int("page", page.Index).
			Str("reply", md).
			Msg("Model reply looks like a refusal")
	}

	c.logger.Debug().
		Int("page", page.Index).
		Int("chars", len(md)).
		Dur("duration", time.Since(start)).
		Msg("Page transcribed")

	return md, nil
}

// readResponse collects the completion from either an SSE stream or a plain
// JSON body; servers that ignore "stream" answer with the latter.
func (c *Client) readResponse(resp *http.Response) (string, string, error) {
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var out Response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", "", domain.InferenceError("failed to decode response", err)
		}
		if out.Error != nil {
			return "", "", domain.InferenceError("model endpoint error", fmt.Errorf("%s", out.Error.Message))
		}
		if len(out.Choices) == 0 {
			return "", "", nil
		}
		return out.Choices[0].Message.Content, out.Choices[0].FinishReason, nil
	}

	text, finish, err := NewStreamParser(resp.Body).Collect()
	if err != nil {
		return "", "", domain.InferenceError("failed to parse stream", err)
	}
	return text, finish, nil
}

// buildRequest constructs the API request with the image
func (c *Client) buildRequest(page domain.PageImage) (*Request, error) {
	data := page.Data
	if len(data) == 0 && page.Path != "" {
		var err error
		data, err = os.ReadFile(page.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read page image: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("page %d has no image data", page.Index)
	}

	mime := page.MIMEType
	if mime == "" {
		mime = "image/png"
	}

	msg := Message{
		Role: "user",
		Content: []ContentPart{
			{
				Type:     "image_url",
				ImageURL: &ImageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)},
			},
			{
				Type: "text",
				Text: c.cfg.Prompt,
			},
		},
	}

	return &Request{
		Model:     c.cfg.Model,
		Messages:  []Message{msg},
		MaxTokens: c.cfg.MaxTokens,
		Stream:    true,
	}, nil
}
