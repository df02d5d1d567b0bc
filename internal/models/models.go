// Package models defines the core data structures for ScriptPipe.
//
// It includes the script configuration snapshot, candidate leads, script
// stages, and workflow phases shared across modules.
package models

import "errors"

// Duration selects which stage structure applies to a script.
type Duration string

const (
	// DurationShort is a direct-mechanism script of up to ~8 minutes (4 stages).
	DurationShort Duration = "short"
	// DurationMedium is a narrative-driven script of up to ~15 minutes (4 stages).
	DurationMedium Duration = "medium"
	// DurationLong is a hybrid content script of up to ~60 minutes (5 stages).
	DurationLong Duration = "long"
)

// Format describes the presentation style of the recorded video.
// Informational only; it is passed through to the generation provider.
type Format string

const (
	// FormatOnCamera is the expert speaking directly to camera.
	FormatOnCamera Format = "on_camera"
	// FormatSlides is voice-over narration with slides or animation.
	FormatSlides Format = "slides"
	// FormatInterview is an interview or podcast style recording.
	FormatInterview Format = "interview"
)

// Goal describes the conversion objective of the script.
type Goal string

const (
	// GoalLeadCapture collects contact information.
	GoalLeadCapture Goal = "lead_capture"
	// GoalDirectSale sells a product directly from the video.
	GoalDirectSale Goal = "direct_sale"
	// GoalApplication drives applications for a high-ticket offer.
	GoalApplication Goal = "application"
	// GoalStrategySession books a filtered strategy call.
	GoalStrategySession Goal = "strategy_session"
	// GoalOther is a free-form objective described in GoalOther.
	GoalOther Goal = "other"
)

// MaxAttachmentSize is the per-file byte ceiling for encoded attachments.
const MaxAttachmentSize = 4 * 1024 * 1024

// Error variables for validation and workflow failures.
var (
	ErrMissingExpert         = errors.New("expert is required")
	ErrMissingAudience       = errors.New("audience is required")
	ErrMissingCampaign       = errors.New("campaign is required")
	ErrInvalidDuration       = errors.New("invalid duration")
	ErrInvalidFormat         = errors.New("invalid format")
	ErrInvalidGoal           = errors.New("invalid goal")
	ErrMissingProduct        = errors.New("product is required for this goal")
	ErrMissingGoalOther      = errors.New("goal description is required when goal is other")
	ErrAttachmentTooLarge    = errors.New("attachment exceeds size limit")
	ErrMalformedLeadPayload  = errors.New("malformed lead payload from provider")
	ErrNoLeadsGenerated      = errors.New("provider returned no leads")
	ErrBusy                  = errors.New("another generation is already in progress")
	ErrNoConfig              = errors.New("no configuration snapshot loaded")
	ErrUnknownLead           = errors.New("unknown lead id")
	ErrNoLeadSelected        = errors.New("no lead selected")
	ErrEmptyFeedback         = errors.New("feedback cannot be empty")
	ErrNoActiveStage         = errors.New("no stage awaiting approval")
	ErrWorkflowNotCompleted  = errors.New("workflow is not completed")
	ErrInvalidPhase          = errors.New("operation not allowed in current phase")
)

// IsValidDuration checks if the given duration is supported.
func IsValidDuration(d Duration) bool {
	switch d {
	case DurationShort, DurationMedium, DurationLong:
		return true
	default:
		return false
	}
}

// IsValidFormat checks if the given format is supported.
func IsValidFormat(f Format) bool {
	switch f {
	case FormatOnCamera, FormatSlides, FormatInterview:
		return true
	default:
		return false
	}
}

// IsValidGoal checks if the given goal is supported.
func IsValidGoal(g Goal) bool {
	switch g {
	case GoalLeadCapture, GoalDirectSale, GoalApplication, GoalStrategySession, GoalOther:
		return true
	default:
		return false
	}
}

// RequiresProduct reports whether the goal needs a concrete product attached.
func (g Goal) RequiresProduct() bool {
	return g == GoalDirectSale || g == GoalApplication
}

// Attachment is an encoded file suitable for embedding in a text-based
// provider request. Data holds the base64 payload.
type Attachment struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ScriptConfig is the configuration snapshot consumed by the workflow.
// Once a generation run starts the workflow keeps its own copy; later edits
// do not affect stages already in flight.
type ScriptConfig struct {
	Expert       string       `json:"expert"`
	Audience     string       `json:"audience"`
	Campaign     string       `json:"campaign"`
	Duration     Duration     `json:"duration"`
	Format       Format       `json:"format"`
	Goal         Goal         `json:"goal"`
	GoalOther    string       `json:"goal_other,omitempty"`
	Product      string       `json:"product,omitempty"`
	ContentInput string       `json:"content_input,omitempty"` // extra source material for long scripts
	Observations string       `json:"observations,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// Validate checks that all required configuration fields are present before
// any provider call is made.
func (c *ScriptConfig) Validate() error {
	if c.Expert == "" {
		return ErrMissingExpert
	}
	if c.Audience == "" {
		return ErrMissingAudience
	}
	if c.Campaign == "" {
		return ErrMissingCampaign
	}
	if !IsValidDuration(c.Duration) {
		return ErrInvalidDuration
	}
	if !IsValidFormat(c.Format) {
		return ErrInvalidFormat
	}
	if !IsValidGoal(c.Goal) {
		return ErrInvalidGoal
	}
	if c.Goal.RequiresProduct() && c.Product == "" {
		return ErrMissingProduct
	}
	if c.Goal == GoalOther && c.GoalOther == "" {
		return ErrMissingGoalOther
	}
	return nil
}

// CandidateLead is one generated opening option for the script.
type CandidateLead struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
