// Package genai provides generation provider backends for ScriptPipe.
//
// This file implements the OpenAI-backed provider using the official
// openai-go SDK (chat completions for the batch call, SSE streaming for
// stage generation).
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// DefaultOpenAIModel is the model used when none is configured.
const DefaultOpenAIModel = string(openai.ChatModelGPT4o)

// chatService defines the minimal chat-completions surface used by the
// client, so tests can substitute a mock.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// OpenAIClient implements Provider on top of the OpenAI chat completions API.
type OpenAIClient struct {
	chat       chatService
	model      string
	stageModel string
}

// NewOpenAIClient initializes an OpenAI-backed provider. The API key falls
// back to the OPENAI_API_KEY environment variable.
func NewOpenAIClient(opts ...Option) (*OpenAIClient, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.StageModel == "" {
		cfg.StageModel = cfg.Model
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("OpenAIClient.NewOpenAIClient: created", "model", cfg.Model, "stage_model", cfg.StageModel, "base_url_set", cfg.BaseURL != "")
	return &OpenAIClient{chat: &cli.Chat.Completions, model: cfg.Model, stageModel: cfg.StageModel}, nil
}

// GenerateLeads performs the structured batch call and parses candidate
// leads out of the first choice.
func (c *OpenAIClient) GenerateLeads(ctx context.Context, req BatchRequest) ([]models.CandidateLead, error) {
	slog.Debug("OpenAIClient.GenerateLeads: invoking batch call", "model", c.model, "attachments", len(req.Attachments))
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: c.buildMessages(req),
	})
	if err != nil {
		slog.Error("OpenAIClient.GenerateLeads: batch call failed", "error", err)
		return nil, fmt.Errorf("openai batch call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("OpenAIClient.GenerateLeads: no choices returned")
		return nil, models.ErrMalformedLeadPayload
	}
	leads, err := ParseLeads(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Error("OpenAIClient.GenerateLeads: parse failed", "error", err)
		return nil, err
	}
	slog.Debug("OpenAIClient.GenerateLeads: succeeded", "leads", len(leads))
	return leads, nil
}

// GenerateStage opens an SSE stream for one script stage.
func (c *OpenAIClient) GenerateStage(ctx context.Context, req StreamRequest) (Stream, error) {
	slog.Debug("OpenAIClient.GenerateStage: opening stream", "model", c.stageModel, "attachments", len(req.Attachments))
	sse := c.chat.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.stageModel),
		Messages: c.buildMessages(req),
	})
	return &openAIStream{inner: sse}, nil
}

// buildMessages assembles the system instruction and the user prompt. Image
// attachments ride along as data-URI parts; other media types are skipped
// because the chat completions API does not accept them inline.
func (c *OpenAIClient) buildMessages(req BatchRequest) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.Instructions),
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
	}
	for _, att := range req.Attachments {
		if !strings.HasPrefix(att.MediaType, "image/") {
			slog.Warn("OpenAIClient.buildMessages: skipping non-image attachment", "name", att.Name, "media_type", att.MediaType)
			continue
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: fmt.Sprintf("data:%s;base64,%s", att.MediaType, att.Data),
		}))
	}
	messages = append(messages, openai.UserMessage(parts))
	return messages
}

// openAIStream adapts the SDK's SSE stream of chat completion chunks to the
// fragment Stream contract.
type openAIStream struct {
	inner   *ssestream.Stream[openai.ChatCompletionChunk]
	current string
}

func (s *openAIStream) Next() bool {
	for s.inner.Next() {
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		// Empty deltas (role-only chunks) are not fragments.
		if chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.current = chunk.Choices[0].Delta.Content
		return true
	}
	return false
}

func (s *openAIStream) Current() string {
	return s.current
}

func (s *openAIStream) Err() error {
	return s.inner.Err()
}
