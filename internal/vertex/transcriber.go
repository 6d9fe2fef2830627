// Package vertex transcribes page images with Gemini on Vertex AI.
package vertex

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/observability"
	"github.com/spherical/docparser/internal/transcript"
)

const (
	DefaultModel  = "gemini-1.5-pro"
	DefaultPrompt = "Please transform the document's contents into Markdown format."
)

// Config selects the project, region and model.
type Config struct {
	ProjectID string
	Region    string
	Model     string
	Prompt    string
	MaxTokens int

	// RejectRefusals fails the page when the reply is a canned refusal.
	RejectRefusals bool
}

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Transcriber implements domain.Transcriber against a Gemini model.
type Transcriber struct {
	model  generator
	client *genai.Client
	name   string
	prompt string
	reject bool
	logger *observability.Logger
}

// New creates the Vertex AI client and configures the model once.
func New(ctx context.Context, cfg Config, logger *observability.Logger) (*Transcriber, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, domain.ConfigError("vertex: project_id and region cannot be empty", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if logger == nil {
		logger = observability.NewNop()
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, domain.ConfigError("vertex: failed to create client", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(0)
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}

	return &Transcriber{
		model:  model,
		client: client,
		name:   cfg.Model,
		prompt: cfg.Prompt,
		reject: cfg.RejectRefusals,
		logger: logger,
	}, nil
}

// Model returns the configured model name.
func (t *Transcriber) Model() string {
	return t.name
}

// Transcribe sends the page as inline image data followed by the prompt.
func (t *Transcriber) Transcribe(ctx context.Context, page domain.PageImage) (string, error) {
	data := page.Data
	if len(data) == 0 && page.Path != "" {
		var err error
		if data, err = os.ReadFile(page.Path); err != nil {
			return "", domain.InferenceError("failed to read page image", err)
		}
	}
	mime := page.MIMEType
	if mime == "" {
		mime = "image/png"
	}

	resp, err := t.model.GenerateContent(ctx, genai.Blob{MIMEType: mime, Data: data}, genai.Text(t.prompt))
	if err != nil {
		return "", domain.InferenceError("failed to generate content from gemini", err)
	}

	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", domain.InferenceError(fmt.Sprintf("gemini blocked page %d for safety", page.Index), nil)
	}

	md := extractMarkdown(resp)
	if transcript.IsRefusal(md) {
		if t.reject {
			t.logger.Error().
				Int("page", page.Index).
				Str("response", md).
				Msg("LLM refusal detected")
			return "", domain.InferenceError(fmt.Sprintf("gemini response indicates refusal for page %d", page.Index), nil)
		}
		t.logger.Warn().
			Int("page", page.Index).
			Str("response", md).
			Msg("LLM reply looks like a refusal, keeping it as page text")
	}
	if md == "" {
		t.logger.Warn().Int("page", page.Index).Msg("No markdown content extracted from response. Treating as empty page.")
	}
	return md, nil
}

// Close releases the underlying client.
func (t *Transcriber) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

func extractMarkdown(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return transcript.Clean(b.String())
}
