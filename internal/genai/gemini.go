// Package genai provides generation provider backends for ScriptPipe.
//
// This file implements the Gemini-backed provider using the official
// google.golang.org/genai SDK.
package genai

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"log/slog"
	"os"

	gemini "google.golang.org/genai"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// Default Gemini models: a fast model for the lead batch, a stronger one for
// stage writing.
const (
	DefaultGeminiModel      = "gemini-3-flash-preview"
	DefaultGeminiStageModel = "gemini-3-pro-preview"
)

// GeminiClient implements Provider on top of the Gemini API.
type GeminiClient struct {
	cli        *gemini.Client
	model      string
	stageModel string
}

// NewGeminiClient initializes a Gemini-backed provider. The API key falls
// back to the GEMINI_API_KEY environment variable.
func NewGeminiClient(ctx context.Context, opts ...Option) (*GeminiClient, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.StageModel == "" {
		cfg.StageModel = DefaultGeminiStageModel
	}

	cli, err := gemini.NewClient(ctx, &gemini.ClientConfig{APIKey: cfg.APIKey, Backend: gemini.BackendGeminiAPI})
	if err != nil {
		slog.Error("GeminiClient.NewGeminiClient: client creation failed", "error", err)
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	slog.Debug("GeminiClient.NewGeminiClient: created", "model", cfg.Model, "stage_model", cfg.StageModel)
	return &GeminiClient{cli: cli, model: cfg.Model, stageModel: cfg.StageModel}, nil
}

// GenerateLeads performs the batch call with a JSON response MIME type and
// parses candidate leads out of the first candidate.
func (c *GeminiClient) GenerateLeads(ctx context.Context, req BatchRequest) ([]models.CandidateLead, error) {
	slog.Debug("GeminiClient.GenerateLeads: invoking batch call", "model", c.model, "attachments", len(req.Attachments))
	resp, err := c.cli.Models.GenerateContent(ctx, c.model,
		[]*gemini.Content{{Parts: buildGeminiParts(req)}},
		&gemini.GenerateContentConfig{
			SystemInstruction: &gemini.Content{Parts: []*gemini.Part{{Text: req.Instructions}}},
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		slog.Error("GeminiClient.GenerateLeads: batch call failed", "error", err)
		return nil, fmt.Errorf("gemini batch call failed: %w", err)
	}
	text := candidateText(resp)
	if text == "" {
		slog.Error("GeminiClient.GenerateLeads: empty response")
		return nil, models.ErrMalformedLeadPayload
	}
	leads, err := ParseLeads(text)
	if err != nil {
		slog.Error("GeminiClient.GenerateLeads: parse failed", "error", err)
		return nil, err
	}
	slog.Debug("GeminiClient.GenerateLeads: succeeded", "leads", len(leads))
	return leads, nil
}

// GenerateStage opens a fragment stream for one script stage.
func (c *GeminiClient) GenerateStage(ctx context.Context, req StreamRequest) (Stream, error) {
	slog.Debug("GeminiClient.GenerateStage: opening stream", "model", c.stageModel, "attachments", len(req.Attachments))
	seq := c.cli.Models.GenerateContentStream(ctx, c.stageModel,
		[]*gemini.Content{{Parts: buildGeminiParts(req)}},
		&gemini.GenerateContentConfig{
			SystemInstruction: &gemini.Content{Parts: []*gemini.Part{{Text: req.Instructions}}},
		},
	)
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

// buildGeminiParts assembles the prompt text plus inline-data parts for the
// attachments. Payloads that fail to decode are skipped with a warning so a
// single corrupt file does not sink the request.
func buildGeminiParts(req BatchRequest) []*gemini.Part {
	parts := []*gemini.Part{{Text: req.Prompt}}
	for _, att := range req.Attachments {
		raw, err := base64.StdEncoding.DecodeString(att.Data)
		if err != nil {
			slog.Warn("GeminiClient.buildGeminiParts: skipping undecodable attachment", "name", att.Name, "error", err)
			continue
		}
		parts = append(parts, &gemini.Part{InlineData: &gemini.Blob{MIMEType: att.MediaType, Data: raw}})
	}
	return parts
}

// candidateText concatenates the text parts of the first candidate.
func candidateText(resp *gemini.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		out += part.Text
	}
	return out
}

// geminiStream adapts the SDK's pull-converted response sequence to the
// fragment Stream contract.
type geminiStream struct {
	next    func() (*gemini.GenerateContentResponse, error, bool)
	stop    func()
	current string
	err     error
}

func (s *geminiStream) Next() bool {
	if s.err != nil {
		return false
	}
	for {
		resp, err, ok := s.next()
		if !ok {
			return false
		}
		if err != nil {
			s.err = err
			s.stop()
			return false
		}
		if text := candidateText(resp); text != "" {
			s.current = text
			return true
		}
	}
}

func (s *geminiStream) Current() string {
	return s.current
}

func (s *geminiStream) Err() error {
	return s.err
}
