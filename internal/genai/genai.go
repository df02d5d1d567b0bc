// Package genai provides generation provider backends for ScriptPipe.
//
// The workflow depends on two provider operations: a structured batch call
// that returns candidate leads, and an incremental text stream that produces
// one script stage. Both OpenAI and Gemini backends implement the same
// contract; the backend is selected at startup.
package genai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// BatchRequest carries one provider call: the opaque instruction template,
// the assembled prompt text, and any encoded attachments.
type BatchRequest struct {
	Instructions string
	Prompt       string
	Attachments  []models.Attachment
}

// StreamRequest is shaped identically to BatchRequest; the distinction is
// which provider operation it feeds.
type StreamRequest = BatchRequest

// Stream is a finite, non-restartable sequence of text fragments. Fragments
// arrive in emission order and must be appended in that order; after Next
// returns false, Err reports whether the stream ended cleanly.
type Stream interface {
	// Next advances to the next fragment. It returns false when the stream
	// is exhausted or failed.
	Next() bool
	// Current returns the fragment Next advanced to.
	Current() string
	// Err returns the terminal error, if any.
	Err() error
}

// Provider is the generation backend contract the workflow depends on.
type Provider interface {
	// GenerateLeads performs the batch call and returns parsed candidate
	// leads. Malformed or empty output is a hard failure, never retried here.
	GenerateLeads(ctx context.Context, req BatchRequest) ([]models.CandidateLead, error)
	// GenerateStage opens a fragment stream for one script stage.
	GenerateStage(ctx context.Context, req StreamRequest) (Stream, error)
}

// Opts holds configuration options for provider clients.
type Opts struct {
	APIKey     string
	Model      string // model for the lead batch call
	StageModel string // model for stage streaming; defaults to Model
	BaseURL    string // OpenAI-compatible endpoint override
}

// Option defines a configuration option for provider clients.
type Option func(*Opts)

// WithAPIKey sets the provider API key explicitly instead of reading it from
// the environment.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the model used for the lead batch call.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithStageModel sets the model used for stage streaming.
func WithStageModel(model string) Option {
	return func(o *Opts) {
		o.StageModel = model
	}
}

// WithBaseURL sets an OpenAI-compatible endpoint override.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// ParseLeads extracts the candidate lead array from raw model output.
// Models wrap the JSON payload in code fences or surrounding prose, so the
// payload is located between the first '[' and the last ']' after fence
// stripping.
func ParseLeads(raw string) ([]models.CandidateLead, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end < start {
		return nil, models.ErrMalformedLeadPayload
	}

	var leads []models.CandidateLead
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &leads); err != nil {
		return nil, models.ErrMalformedLeadPayload
	}
	if len(leads) == 0 {
		return nil, models.ErrNoLeadsGenerated
	}
	return leads, nil
}
