// Package models defines workflow state structures for ScriptPipe.
package models

import "time"

// StageStatus represents the lifecycle of a script stage.
type StageStatus string

const (
	// StageStatusStreaming indicates fragments are being appended to the stage.
	StageStatusStreaming StageStatus = "streaming"
	// StageStatusWaitingApproval indicates the stage finished streaming and
	// needs a user decision (approve or refine).
	StageStatusWaitingApproval StageStatus = "waiting_approval"
	// StageStatusApproved indicates the stage is locked in. Approved content
	// is immutable for the rest of the run.
	StageStatusApproved StageStatus = "approved"
)

// LeadStageID identifies stage 0, which is seeded from the selected lead and
// never regenerated through refinement.
const LeadStageID = "lead"

// ScriptStage is one sequential, independently approved unit of the script.
type ScriptStage struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Content     string      `json:"content"`
	Status      StageStatus `json:"status"`
}

// Phase is the coarse state of the whole workflow run.
type Phase string

const (
	// PhaseConfig is the initial phase; configuration is being collected.
	PhaseConfig Phase = "CONFIG"
	// PhaseLeadsGenerated means a candidate batch is available for selection.
	PhaseLeadsGenerated Phase = "LEADS_GENERATED"
	// PhaseBlockBuilder means stages are being generated and approved one at
	// a time.
	PhaseBlockBuilder Phase = "BLOCK_BUILDER"
	// PhaseCompleted means every catalog stage has been approved.
	PhaseCompleted Phase = "COMPLETED"
)

// WorkflowState is the read-only view of the workflow exposed to the
// presentation surface.
type WorkflowState struct {
	Phase          Phase           `json:"phase"`
	Processing     bool            `json:"processing"`
	Leads          []CandidateLead `json:"leads,omitempty"`
	SelectedLeadID int64           `json:"selected_lead_id,omitempty"`
	Stages         []ScriptStage   `json:"stages,omitempty"`
}

// ScriptRecord is an archived completed script.
type ScriptRecord struct {
	ID        int64     `json:"id,omitempty"`
	Expert    string    `json:"expert"`
	Audience  string    `json:"audience"`
	Campaign  string    `json:"campaign"`
	Duration  Duration  `json:"duration"`
	Goal      Goal      `json:"goal"`
	Markdown  string    `json:"markdown"`
	CreatedAt time.Time `json:"created_at"`
}
