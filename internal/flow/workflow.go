// Package flow implements the ScriptPipe workflow orchestrator.
//
// The Workflow drives the staged generation state machine: lead generation,
// lead selection, sequential stage generation with approval and
// regeneration-with-feedback, and completion. It exclusively owns the stage
// list, candidate list and workflow phase; a single processing flag
// serializes all provider calls.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ScriptPipe/internal/catalog"
	"github.com/BTreeMap/ScriptPipe/internal/export"
	"github.com/BTreeMap/ScriptPipe/internal/genai"
	"github.com/BTreeMap/ScriptPipe/internal/models"
	"github.com/BTreeMap/ScriptPipe/internal/store"
)

// DefaultTimeout bounds every provider call. A hung provider must not hang
// the workflow indefinitely.
const DefaultTimeout = 5 * time.Minute

// stageContextSeparator joins approved stage contents into the context
// passed to the provider.
const stageContextSeparator = "\n\n"

// CatalogFunc resolves the ordered stage definitions for a duration.
type CatalogFunc func(models.Duration) []catalog.StageDefinition

// Opts holds configuration options for the workflow.
type Opts struct {
	Timeout time.Duration
	Store   store.Store
	Catalog CatalogFunc
}

// Option defines a configuration option for the workflow.
type Option func(*Opts)

// WithTimeout bounds each provider call with the given timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithStore archives completed scripts to the given store.
func WithStore(st store.Store) Option {
	return func(o *Opts) {
		o.Store = st
	}
}

// WithCatalog overrides the stage catalog lookup.
func WithCatalog(fn CatalogFunc) Option {
	return func(o *Opts) {
		o.Catalog = fn
	}
}

// Workflow is the staged generation state machine. All exported methods are
// safe for concurrent use; mutating operations fail fast with models.ErrBusy
// while a provider call is in flight.
type Workflow struct {
	provider genai.Provider
	catalog  CatalogFunc
	timeout  time.Duration
	st       store.Store

	mu         sync.Mutex
	phase      models.Phase
	processing bool
	config     models.ScriptConfig
	leads      []models.CandidateLead
	selectedID int64
	stages     []models.ScriptStage
}

// NewWorkflow creates a workflow driven by the given provider.
func NewWorkflow(provider genai.Provider, opts ...Option) *Workflow {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalog.StagesFor
	}
	slog.Debug("Workflow.NewWorkflow: created", "timeout", cfg.Timeout, "store_set", cfg.Store != nil)
	return &Workflow{
		provider: provider,
		catalog:  cfg.Catalog,
		timeout:  cfg.Timeout,
		st:       cfg.Store,
		phase:    models.PhaseConfig,
	}
}

// begin claims the processing flag, rejecting overlapping generation
// operations.
func (w *Workflow) begin(op string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processing {
		slog.Warn("Workflow: operation rejected while processing", "op", op)
		return models.ErrBusy
	}
	w.processing = true
	return nil
}

// end releases the processing flag. Deferred on every path so a provider
// failure can never leave the workflow stuck busy.
func (w *Workflow) end() {
	w.mu.Lock()
	w.processing = false
	w.mu.Unlock()
}

// GenerateLeads validates the configuration, invokes the provider batch
// operation and, on success, replaces the candidate list and enters
// LEADS_GENERATED with no candidate selected. On failure all workflow state
// is left unchanged, so re-invocation is safe. Calling it again from
// LEADS_GENERATED is the "regenerate" action.
func (w *Workflow) GenerateLeads(ctx context.Context, cfg models.ScriptConfig) error {
	slog.Debug("Workflow.GenerateLeads: invoked", "expert", cfg.Expert, "duration", cfg.Duration)
	if err := cfg.Validate(); err != nil {
		slog.Warn("Workflow.GenerateLeads: validation failed", "error", err)
		return err
	}
	if err := w.begin("GenerateLeads"); err != nil {
		return err
	}
	defer w.end()

	firstStage := w.catalog(cfg.Duration)[0]
	req := genai.BatchRequest{
		Instructions: SystemInstruction,
		Prompt:       leadPrompt(cfg, firstStage.Description),
		Attachments:  cfg.Attachments,
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	leads, err := w.provider.GenerateLeads(callCtx, req)
	if err != nil {
		slog.Error("Workflow.GenerateLeads: provider batch failed", "error", err)
		return fmt.Errorf("lead generation failed: %w", err)
	}

	w.mu.Lock()
	w.config = snapshotConfig(cfg)
	w.leads = leads
	w.selectedID = 0
	w.stages = nil
	w.phase = models.PhaseLeadsGenerated
	w.mu.Unlock()

	slog.Info("Workflow.GenerateLeads: succeeded", "leads", len(leads))
	return nil
}

// SelectLead marks a candidate as the chosen one. Purely local; idempotent
// for the same id.
func (w *Workflow) SelectLead(id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processing {
		return models.ErrBusy
	}
	if w.phase != models.PhaseLeadsGenerated {
		slog.Warn("Workflow.SelectLead: wrong phase", "phase", w.phase)
		return models.ErrInvalidPhase
	}
	for _, lead := range w.leads {
		if lead.ID == id {
			w.selectedID = id
			slog.Debug("Workflow.SelectLead: selected", "id", id)
			return nil
		}
	}
	slog.Warn("Workflow.SelectLead: unknown lead", "id", id)
	return models.ErrUnknownLead
}

// ApproveLead seeds stage 0 from the selected candidate (already approved)
// and starts generating stage 1. The candidate list is discarded once stage
// 0 exists.
func (w *Workflow) ApproveLead(ctx context.Context) error {
	if err := w.begin("ApproveLead"); err != nil {
		return err
	}
	defer w.end()

	w.mu.Lock()
	if w.phase != models.PhaseLeadsGenerated {
		w.mu.Unlock()
		slog.Warn("Workflow.ApproveLead: wrong phase", "phase", w.phase)
		return models.ErrInvalidPhase
	}
	if w.selectedID == 0 {
		w.mu.Unlock()
		slog.Warn("Workflow.ApproveLead: no lead selected")
		return models.ErrNoLeadSelected
	}
	var selected *models.CandidateLead
	for i := range w.leads {
		if w.leads[i].ID == w.selectedID {
			selected = &w.leads[i]
			break
		}
	}
	if selected == nil {
		w.mu.Unlock()
		return models.ErrUnknownLead
	}

	structure := w.catalog(w.config.Duration)
	w.stages = []models.ScriptStage{{
		ID:          models.LeadStageID,
		Title:       structure[0].Title,
		Description: structure[0].Description,
		Content:     selected.Content,
		Status:      models.StageStatusApproved,
	}}
	w.leads = nil
	w.selectedID = 0
	w.phase = models.PhaseBlockBuilder
	w.mu.Unlock()

	slog.Info("Workflow.ApproveLead: stage 0 seeded, advancing")
	return w.advanceStage(ctx, 1, "")
}

// ApproveStage locks in the active stage and starts generating the next one
// (or completes the workflow when the catalog is exhausted).
func (w *Workflow) ApproveStage(ctx context.Context) error {
	if err := w.begin("ApproveStage"); err != nil {
		return err
	}
	defer w.end()

	w.mu.Lock()
	if w.phase != models.PhaseBlockBuilder {
		w.mu.Unlock()
		slog.Warn("Workflow.ApproveStage: wrong phase", "phase", w.phase)
		return models.ErrInvalidPhase
	}
	active := len(w.stages) - 1
	if active < 0 || w.stages[active].Status != models.StageStatusWaitingApproval {
		w.mu.Unlock()
		slog.Warn("Workflow.ApproveStage: no stage awaiting approval")
		return models.ErrNoActiveStage
	}
	w.stages[active].Status = models.StageStatusApproved
	next := active + 1
	w.mu.Unlock()

	slog.Info("Workflow.ApproveStage: stage approved", "index", active)
	return w.advanceStage(ctx, next, "")
}

// RefineStage regenerates the active stage with user feedback, replacing its
// previous content entirely.
func (w *Workflow) RefineStage(ctx context.Context, feedback string) error {
	if strings.TrimSpace(feedback) == "" {
		return models.ErrEmptyFeedback
	}
	if err := w.begin("RefineStage"); err != nil {
		return err
	}
	defer w.end()

	w.mu.Lock()
	if w.phase != models.PhaseBlockBuilder {
		w.mu.Unlock()
		slog.Warn("Workflow.RefineStage: wrong phase", "phase", w.phase)
		return models.ErrInvalidPhase
	}
	active := len(w.stages) - 1
	if active < 1 || w.stages[active].Status != models.StageStatusWaitingApproval {
		w.mu.Unlock()
		slog.Warn("Workflow.RefineStage: no stage awaiting approval")
		return models.ErrNoActiveStage
	}
	w.mu.Unlock()

	slog.Info("Workflow.RefineStage: regenerating stage", "index", active)
	return w.advanceStage(ctx, active, feedback)
}

// Restart discards stages 1..N of a completed script and regenerates from
// stage 1, keeping the approved lead stage.
func (w *Workflow) Restart(ctx context.Context) error {
	if err := w.begin("Restart"); err != nil {
		return err
	}
	defer w.end()

	w.mu.Lock()
	if w.phase != models.PhaseCompleted {
		w.mu.Unlock()
		slog.Warn("Workflow.Restart: wrong phase", "phase", w.phase)
		return models.ErrWorkflowNotCompleted
	}
	w.stages = w.stages[:1]
	w.phase = models.PhaseBlockBuilder
	w.mu.Unlock()

	slog.Info("Workflow.Restart: restarting from stage 1")
	return w.advanceStage(ctx, 1, "")
}

// Reset clears all workflow state and returns to CONFIG. Destructive; the
// presentation surface is responsible for user confirmation.
func (w *Workflow) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processing {
		return models.ErrBusy
	}
	w.leads = nil
	w.selectedID = 0
	w.stages = nil
	w.config = models.ScriptConfig{}
	w.phase = models.PhaseConfig
	slog.Info("Workflow.Reset: workflow reset")
	return nil
}

// State returns a deep-copied view of the workflow for the presentation
// surface. Safe to call while a stage is streaming; the active stage's
// content reflects the fragments appended so far.
func (w *Workflow) State() models.WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := models.WorkflowState{
		Phase:          w.phase,
		Processing:     w.processing,
		SelectedLeadID: w.selectedID,
	}
	if len(w.leads) > 0 {
		state.Leads = make([]models.CandidateLead, len(w.leads))
		copy(state.Leads, w.leads)
	}
	if len(w.stages) > 0 {
		state.Stages = make([]models.ScriptStage, len(w.stages))
		copy(state.Stages, w.stages)
	}
	return state
}

// advanceStage generates the stage at index, streaming fragments into its
// content in arrival order. The context passed to the provider is the
// concatenation of all prior stage contents. Callers must hold the
// processing flag.
func (w *Workflow) advanceStage(ctx context.Context, index int, feedback string) error {
	w.mu.Lock()
	structure := w.catalog(w.config.Duration)
	if index >= len(structure) {
		w.phase = models.PhaseCompleted
		stages := make([]models.ScriptStage, len(w.stages))
		copy(stages, w.stages)
		cfg := w.config
		w.mu.Unlock()
		slog.Info("Workflow.advanceStage: catalog exhausted, workflow completed", "stages", len(stages))
		w.archive(cfg, stages)
		return nil
	}
	if index < 1 || index > len(w.stages) {
		w.mu.Unlock()
		panic(fmt.Sprintf("flow: stage index %d out of range (have %d stages)", index, len(w.stages)))
	}

	def := structure[index]
	stage := models.ScriptStage{
		ID:          fmt.Sprintf("stage-%d", index),
		Title:       def.Title,
		Description: def.Description,
		Status:      models.StageStatusStreaming,
	}
	if index < len(w.stages) {
		w.stages[index] = stage // regeneration replaces, never appends
	} else {
		w.stages = append(w.stages, stage)
	}

	contexts := make([]string, 0, index)
	for _, prior := range w.stages[:index] {
		contexts = append(contexts, prior.Content)
	}
	previousContext := strings.Join(contexts, stageContextSeparator)
	cfg := w.config
	w.mu.Unlock()

	req := genai.StreamRequest{
		Instructions: SystemInstruction,
		Prompt:       stagePrompt(cfg, def, previousContext, feedback),
		Attachments:  cfg.Attachments,
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	slog.Debug("Workflow.advanceStage: streaming stage", "index", index, "title", def.Title, "refinement", feedback != "")
	stream, err := w.provider.GenerateStage(callCtx, req)
	if err != nil {
		w.finishStage(index)
		slog.Error("Workflow.advanceStage: stream open failed", "error", err, "index", index)
		return fmt.Errorf("stage generation failed: %w", err)
	}

	for stream.Next() {
		fragment := stream.Current()
		w.mu.Lock()
		w.stages[index].Content += fragment
		w.mu.Unlock()
	}
	w.finishStage(index)

	if err := stream.Err(); err != nil {
		// Partial content stays in place; the user can approve what arrived
		// or refine to replace it.
		slog.Error("Workflow.advanceStage: stream failed mid-flight", "error", err, "index", index)
		return fmt.Errorf("stage generation failed: %w", err)
	}
	slog.Info("Workflow.advanceStage: stage ready for approval", "index", index)
	return nil
}

// finishStage moves the stage at index to waiting_approval.
func (w *Workflow) finishStage(index int) {
	w.mu.Lock()
	w.stages[index].Status = models.StageStatusWaitingApproval
	w.mu.Unlock()
}

// archive saves the completed script to the configured store. Archival
// failures are logged, never surfaced; the in-memory workflow is the source
// of truth.
func (w *Workflow) archive(cfg models.ScriptConfig, stages []models.ScriptStage) {
	if w.st == nil {
		return
	}
	record := models.ScriptRecord{
		Expert:    cfg.Expert,
		Audience:  cfg.Audience,
		Campaign:  cfg.Campaign,
		Duration:  cfg.Duration,
		Goal:      cfg.Goal,
		Markdown:  export.AssembleMarkdown(stages),
		CreatedAt: time.Now(),
	}
	if err := w.st.SaveScript(record); err != nil {
		slog.Error("Workflow.archive: failed to archive script", "error", err)
		return
	}
	slog.Info("Workflow.archive: script archived", "campaign", cfg.Campaign)
}

// snapshotConfig copies the configuration so later edits by the intake
// surface cannot affect a run in progress.
func snapshotConfig(cfg models.ScriptConfig) models.ScriptConfig {
	out := cfg
	if len(cfg.Attachments) > 0 {
		out.Attachments = make([]models.Attachment, len(cfg.Attachments))
		copy(out.Attachments, cfg.Attachments)
	}
	return out
}
