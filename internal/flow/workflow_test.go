package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/ScriptPipe/internal/catalog"
	"github.com/BTreeMap/ScriptPipe/internal/genai"
	"github.com/BTreeMap/ScriptPipe/internal/models"
	"github.com/BTreeMap/ScriptPipe/internal/store"
)

// fakeStream replays canned fragments and then reports a terminal error, if
// any. onFragment, when set, runs before each fragment is delivered.
type fakeStream struct {
	fragments  []string
	err        error
	onFragment func(i int)
	idx        int
}

func (s *fakeStream) Next() bool {
	if s.idx >= len(s.fragments) {
		return false
	}
	if s.onFragment != nil {
		s.onFragment(s.idx)
	}
	s.idx++
	return true
}

func (s *fakeStream) Current() string { return s.fragments[s.idx-1] }
func (s *fakeStream) Err() error {
	if s.idx >= len(s.fragments) {
		return s.err
	}
	return nil
}

// mockProvider implements genai.Provider with canned responses and records
// every request for assertions.
type mockProvider struct {
	leads      []models.CandidateLead
	leadsErr   error
	batchReqs  []genai.BatchRequest
	streamReqs []genai.StreamRequest
	nextStream func(call int, req genai.StreamRequest) (genai.Stream, error)
}

func (m *mockProvider) GenerateLeads(ctx context.Context, req genai.BatchRequest) ([]models.CandidateLead, error) {
	m.batchReqs = append(m.batchReqs, req)
	if m.leadsErr != nil {
		return nil, m.leadsErr
	}
	return m.leads, nil
}

func (m *mockProvider) GenerateStage(ctx context.Context, req genai.StreamRequest) (genai.Stream, error) {
	m.streamReqs = append(m.streamReqs, req)
	if m.nextStream != nil {
		return m.nextStream(len(m.streamReqs), req)
	}
	return &fakeStream{fragments: []string{"Generated ", "stage text."}}, nil
}

func defaultLeads() []models.CandidateLead {
	return []models.CandidateLead{
		{ID: 1, Title: "The Hidden Cause", Content: "Lead body one."},
		{ID: 2, Title: "The 3am Wakeup", Content: "Lead body two."},
		{ID: 3, Title: "The Doctor's Confession", Content: "Lead body three."},
	}
}

func shortConfig() models.ScriptConfig {
	return models.ScriptConfig{
		Expert:   "Dr. Richard Silva (Cardiologist)",
		Audience: "Sedentary men over 45",
		Campaign: "Strong Heart - Direct Sale",
		Duration: models.DurationShort,
		Format:   models.FormatOnCamera,
		Goal:     models.GoalDirectSale,
		Product:  "CardioLife Supplement",
	}
}

// checkStageInvariant verifies that exactly one stage is non-approved and
// every earlier stage is approved.
func checkStageInvariant(t *testing.T, stages []models.ScriptStage) {
	t.Helper()
	active := 0
	for i, stage := range stages {
		if stage.Status == models.StageStatusApproved {
			continue
		}
		active++
		if i != len(stages)-1 {
			t.Errorf("non-approved stage %d is not the last stage", i)
		}
	}
	if active != 1 {
		t.Errorf("expected exactly one active stage, got %d", active)
	}
}

func TestGenerateLeads_Success(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	w := NewWorkflow(provider)

	if err := w.GenerateLeads(context.Background(), shortConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := w.State()
	if state.Phase != models.PhaseLeadsGenerated {
		t.Errorf("expected LEADS_GENERATED, got %s", state.Phase)
	}
	if len(state.Leads) != 3 {
		t.Errorf("expected 3 leads, got %d", len(state.Leads))
	}
	if state.SelectedLeadID != 0 {
		t.Errorf("expected no selection after generation, got %d", state.SelectedLeadID)
	}
	if state.Processing {
		t.Error("processing flag must be cleared after success")
	}
	// Lead prompt carries the first stage definition's description as focus.
	firstDesc := catalog.StagesFor(models.DurationShort)[0].Description
	if !strings.Contains(provider.batchReqs[0].Prompt, firstDesc) {
		t.Error("lead prompt missing first stage description")
	}
}

func TestGenerateLeads_ProviderFailure(t *testing.T) {
	// Scenario B: batch failure leaves everything untouched.
	provider := &mockProvider{leadsErr: errors.New("quota exceeded")}
	w := NewWorkflow(provider)

	err := w.GenerateLeads(context.Background(), shortConfig())
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected provider error, got %v", err)
	}
	state := w.State()
	if state.Phase != models.PhaseConfig {
		t.Errorf("phase must remain CONFIG, got %s", state.Phase)
	}
	if len(state.Leads) != 0 {
		t.Errorf("candidate list must remain empty, got %d", len(state.Leads))
	}
	if state.Processing {
		t.Error("processing flag must be cleared after failure")
	}
}

func TestGenerateLeads_ValidationBlocksProviderCall(t *testing.T) {
	// Scenario C: direct_sale without a product never reaches the provider.
	provider := &mockProvider{leads: defaultLeads()}
	w := NewWorkflow(provider)

	cfg := shortConfig()
	cfg.Product = ""
	if err := w.GenerateLeads(context.Background(), cfg); err != models.ErrMissingProduct {
		t.Fatalf("expected ErrMissingProduct, got %v", err)
	}
	if len(provider.batchReqs) != 0 {
		t.Errorf("provider must not be invoked, recorded %d calls", len(provider.batchReqs))
	}
}

func TestGenerateLeads_Regenerate(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	w := NewWorkflow(provider)
	ctx := context.Background()

	if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.SelectLead(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Regeneration replaces the batch and clears the selection.
	if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state := w.State()
	if state.SelectedLeadID != 0 {
		t.Errorf("regeneration must clear selection, got %d", state.SelectedLeadID)
	}
	if len(provider.batchReqs) != 2 {
		t.Errorf("expected 2 batch calls, got %d", len(provider.batchReqs))
	}
}

func TestSelectLead(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	w := NewWorkflow(provider)
	if err := w.GenerateLeads(context.Background(), shortConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := w.SelectLead(99); err != models.ErrUnknownLead {
		t.Errorf("expected ErrUnknownLead, got %v", err)
	}
	if err := w.SelectLead(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Idempotent: selecting the same id again yields the same state.
	if err := w.SelectLead(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w.State().SelectedLeadID; got != 2 {
		t.Errorf("expected selection 2, got %d", got)
	}
}

func TestSelectLead_WrongPhase(t *testing.T) {
	w := NewWorkflow(&mockProvider{})
	if err := w.SelectLead(1); err != models.ErrInvalidPhase {
		t.Errorf("expected ErrInvalidPhase, got %v", err)
	}
}

func TestApproveLead_RequiresSelection(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	w := NewWorkflow(provider)
	if err := w.GenerateLeads(context.Background(), shortConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.ApproveLead(context.Background()); err != models.ErrNoLeadSelected {
		t.Errorf("expected ErrNoLeadSelected, got %v", err)
	}
}

func TestEndToEnd_ShortScript(t *testing.T) {
	// Scenario A: 4-stage catalog, lead approval plus 3 stage approvals.
	provider := &mockProvider{leads: defaultLeads()}
	st := store.NewInMemoryStore()
	w := NewWorkflow(provider, WithStore(st))
	ctx := context.Background()

	if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
		t.Fatalf("GenerateLeads: %v", err)
	}
	if err := w.SelectLead(2); err != nil {
		t.Fatalf("SelectLead: %v", err)
	}
	if err := w.ApproveLead(ctx); err != nil {
		t.Fatalf("ApproveLead: %v", err)
	}

	state := w.State()
	if state.Phase != models.PhaseBlockBuilder {
		t.Fatalf("expected BLOCK_BUILDER, got %s", state.Phase)
	}
	if len(state.Leads) != 0 {
		t.Error("candidate list must be discarded after stage 0 creation")
	}
	if state.Stages[0].ID != models.LeadStageID || state.Stages[0].Content != "Lead body two." {
		t.Errorf("stage 0 not seeded from selected lead: %+v", state.Stages[0])
	}
	if state.Stages[0].Status != models.StageStatusApproved {
		t.Error("stage 0 must start approved")
	}
	checkStageInvariant(t, state.Stages)

	for i := 0; i < 3; i++ {
		checkStageInvariant(t, w.State().Stages)
		if err := w.ApproveStage(ctx); err != nil {
			t.Fatalf("ApproveStage %d: %v", i, err)
		}
	}

	state = w.State()
	if state.Phase != models.PhaseCompleted {
		t.Fatalf("expected COMPLETED, got %s", state.Phase)
	}
	if len(state.Stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(state.Stages))
	}
	structure := catalog.StagesFor(models.DurationShort)
	for i, stage := range state.Stages {
		if stage.Status != models.StageStatusApproved {
			t.Errorf("stage %d not approved: %s", i, stage.Status)
		}
		if stage.Title != structure[i].Title {
			t.Errorf("stage %d title mismatch: %q vs %q", i, stage.Title, structure[i].Title)
		}
	}

	// Context property: each stream request carries the blank-line-joined
	// contents of all prior stages.
	if len(provider.streamReqs) != 3 {
		t.Fatalf("expected 3 stream calls, got %d", len(provider.streamReqs))
	}
	for i, req := range provider.streamReqs {
		var parts []string
		for _, stage := range state.Stages[:i+1] {
			parts = append(parts, stage.Content)
		}
		want := strings.Join(parts, "\n\n")
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("stream request %d missing assembled context", i)
		}
	}

	// The completed script was archived.
	records, err := st.ListScripts()
	if err != nil {
		t.Fatalf("ListScripts: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 archived script, got %d", len(records))
	}
	if !strings.Contains(records[0].Markdown, "Lead body two.") {
		t.Error("archived markdown missing lead content")
	}
}

func TestFragmentOrder_RoundTrip(t *testing.T) {
	// Streaming N fragments yields exactly their concatenation, whether the
	// stream is one huge fragment or many tiny ones.
	cases := [][]string{
		{"one giant fragment with everything in it"},
		{"a", "b", "c", "d", "e", "f"},
		{"Picture ", "this:", " ", "[CLOSE UP]", "\n\n", "More."},
	}
	for _, fragments := range cases {
		provider := &mockProvider{leads: defaultLeads()}
		provider.nextStream = func(call int, req genai.StreamRequest) (genai.Stream, error) {
			return &fakeStream{fragments: fragments}, nil
		}
		w := NewWorkflow(provider)
		ctx := context.Background()
		if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
			t.Fatalf("GenerateLeads: %v", err)
		}
		if err := w.SelectLead(1); err != nil {
			t.Fatalf("SelectLead: %v", err)
		}
		if err := w.ApproveLead(ctx); err != nil {
			t.Fatalf("ApproveLead: %v", err)
		}
		state := w.State()
		want := strings.Join(fragments, "")
		if state.Stages[1].Content != want {
			t.Errorf("content mismatch: got %q, want %q", state.Stages[1].Content, want)
		}
		if state.Stages[1].Status != models.StageStatusWaitingApproval {
			t.Errorf("expected waiting_approval, got %s", state.Stages[1].Status)
		}
	}
}

func TestRefineStage_ReplacesContent(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	calls := 0
	provider.nextStream = func(call int, req genai.StreamRequest) (genai.Stream, error) {
		calls++
		if calls == 1 {
			return &fakeStream{fragments: []string{"First attempt."}}, nil
		}
		return &fakeStream{fragments: []string{"Second ", "attempt."}}, nil
	}
	w := NewWorkflow(provider)
	ctx := context.Background()

	if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
		t.Fatalf("GenerateLeads: %v", err)
	}
	if err := w.SelectLead(1); err != nil {
		t.Fatalf("SelectLead: %v", err)
	}
	if err := w.ApproveLead(ctx); err != nil {
		t.Fatalf("ApproveLead: %v", err)
	}
	if got := w.State().Stages[1].Content; got != "First attempt." {
		t.Fatalf("unexpected first content: %q", got)
	}

	if err := w.RefineStage(ctx, "make it punchier"); err != nil {
		t.Fatalf("RefineStage: %v", err)
	}
	state := w.State()
	if got := state.Stages[1].Content; got != "Second attempt." {
		t.Errorf("refinement must replace content, got %q", got)
	}
	if len(state.Stages) != 2 {
		t.Errorf("refinement must not add stages, got %d", len(state.Stages))
	}
	// The feedback reaches the provider prompt.
	last := provider.streamReqs[len(provider.streamReqs)-1]
	if !strings.Contains(last.Prompt, "make it punchier") {
		t.Error("feedback missing from refinement prompt")
	}
}

func TestRefineStage_EmptyFeedback(t *testing.T) {
	w := NewWorkflow(&mockProvider{})
	if err := w.RefineStage(context.Background(), "   "); err != models.ErrEmptyFeedback {
		t.Errorf("expected ErrEmptyFeedback, got %v", err)
	}
}

func TestMidStreamFailure_KeepsPartialContent(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	provider.nextStream = func(call int, req genai.StreamRequest) (genai.Stream, error) {
		return &fakeStream{fragments: []string{"Partial "}, err: errors.New("connection reset")}, nil
	}
	w := NewWorkflow(provider)
	ctx := context.Background()

	if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
		t.Fatalf("GenerateLeads: %v", err)
	}
	if err := w.SelectLead(1); err != nil {
		t.Fatalf("SelectLead: %v", err)
	}
	err := w.ApproveLead(ctx)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected stream error, got %v", err)
	}

	state := w.State()
	if state.Processing {
		t.Error("processing flag must be cleared after stream failure")
	}
	if got := state.Stages[1].Content; got != "Partial " {
		t.Errorf("partial content must be kept, got %q", got)
	}
	if state.Stages[1].Status != models.StageStatusWaitingApproval {
		t.Errorf("failed stage must await a user decision, got %s", state.Stages[1].Status)
	}

	// Refinement after the failure replaces the partial text.
	provider.nextStream = func(call int, req genai.StreamRequest) (genai.Stream, error) {
		return &fakeStream{fragments: []string{"Recovered."}}, nil
	}
	if err := w.RefineStage(ctx, "try again"); err != nil {
		t.Fatalf("RefineStage: %v", err)
	}
	if got := w.State().Stages[1].Content; got != "Recovered." {
		t.Errorf("expected replaced content, got %q", got)
	}
}

func TestBusyRejection_DuringStream(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	w := NewWorkflow(provider)
	ctx := context.Background()

	var busyErr error
	var sawProcessing bool
	provider.nextStream = func(call int, req genai.StreamRequest) (genai.Stream, error) {
		return &fakeStream{
			fragments: []string{"a", "b"},
			onFragment: func(i int) {
				if i == 0 {
					sawProcessing = w.State().Processing
					busyErr = w.Reset()
				}
			},
		}, nil
	}

	if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
		t.Fatalf("GenerateLeads: %v", err)
	}
	if err := w.SelectLead(1); err != nil {
		t.Fatalf("SelectLead: %v", err)
	}
	if err := w.ApproveLead(ctx); err != nil {
		t.Fatalf("ApproveLead: %v", err)
	}
	if !sawProcessing {
		t.Error("processing flag must be visible while streaming")
	}
	if busyErr != models.ErrBusy {
		t.Errorf("expected ErrBusy for mutation during stream, got %v", busyErr)
	}
}

func TestRestart_RegeneratesFromStageOne(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	w := NewWorkflow(provider)
	ctx := context.Background()

	if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
		t.Fatalf("GenerateLeads: %v", err)
	}
	if err := w.SelectLead(3); err != nil {
		t.Fatalf("SelectLead: %v", err)
	}
	if err := w.ApproveLead(ctx); err != nil {
		t.Fatalf("ApproveLead: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.ApproveStage(ctx); err != nil {
			t.Fatalf("ApproveStage: %v", err)
		}
	}
	if w.State().Phase != models.PhaseCompleted {
		t.Fatal("expected COMPLETED before restart")
	}

	if err := w.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	state := w.State()
	if state.Phase != models.PhaseBlockBuilder {
		t.Errorf("expected BLOCK_BUILDER, got %s", state.Phase)
	}
	if len(state.Stages) != 2 {
		t.Errorf("expected lead stage plus regenerating stage 1, got %d stages", len(state.Stages))
	}
	if state.Stages[0].Content != "Lead body three." {
		t.Error("restart must keep the approved lead stage")
	}
	if state.Stages[1].Status != models.StageStatusWaitingApproval {
		t.Errorf("expected stage 1 waiting approval, got %s", state.Stages[1].Status)
	}
}

func TestRestart_WrongPhase(t *testing.T) {
	w := NewWorkflow(&mockProvider{})
	if err := w.Restart(context.Background()); err != models.ErrWorkflowNotCompleted {
		t.Errorf("expected ErrWorkflowNotCompleted, got %v", err)
	}
}

func TestReset_ReturnsToConfig(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	w := NewWorkflow(provider)
	ctx := context.Background()

	if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
		t.Fatalf("GenerateLeads: %v", err)
	}
	if err := w.SelectLead(1); err != nil {
		t.Fatalf("SelectLead: %v", err)
	}
	if err := w.ApproveLead(ctx); err != nil {
		t.Fatalf("ApproveLead: %v", err)
	}

	if err := w.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	state := w.State()
	if state.Phase != models.PhaseConfig {
		t.Errorf("expected CONFIG, got %s", state.Phase)
	}
	if len(state.Leads) != 0 || len(state.Stages) != 0 || state.SelectedLeadID != 0 {
		t.Errorf("reset must clear all state: %+v", state)
	}
}

func TestApproveStage_NoActiveStage(t *testing.T) {
	w := NewWorkflow(&mockProvider{})
	if err := w.ApproveStage(context.Background()); err != models.ErrInvalidPhase {
		t.Errorf("expected ErrInvalidPhase, got %v", err)
	}
}

func TestSingleEntryCatalog_CompletesOnApproveLead(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	single := func(models.Duration) []catalog.StageDefinition {
		return []catalog.StageDefinition{{Title: "Block 1: Everything", Description: "The whole pitch in one block."}}
	}
	st := store.NewInMemoryStore()
	w := NewWorkflow(provider, WithCatalog(single), WithStore(st))
	ctx := context.Background()

	if err := w.GenerateLeads(ctx, shortConfig()); err != nil {
		t.Fatalf("GenerateLeads: %v", err)
	}
	if err := w.SelectLead(1); err != nil {
		t.Fatalf("SelectLead: %v", err)
	}
	if err := w.ApproveLead(ctx); err != nil {
		t.Fatalf("ApproveLead: %v", err)
	}
	state := w.State()
	if state.Phase != models.PhaseCompleted {
		t.Errorf("expected COMPLETED, got %s", state.Phase)
	}
	if len(provider.streamReqs) != 0 {
		t.Errorf("no stream call expected for a single-entry catalog, got %d", len(provider.streamReqs))
	}
	records, _ := st.ListScripts()
	if len(records) != 1 {
		t.Errorf("expected archived script, got %d records", len(records))
	}
}

func TestState_ReturnsCopy(t *testing.T) {
	provider := &mockProvider{leads: defaultLeads()}
	w := NewWorkflow(provider)
	if err := w.GenerateLeads(context.Background(), shortConfig()); err != nil {
		t.Fatalf("GenerateLeads: %v", err)
	}
	state := w.State()
	state.Leads[0].Title = "mutated"
	if w.State().Leads[0].Title == "mutated" {
		t.Error("State must return a copy, not a view into workflow internals")
	}
}
