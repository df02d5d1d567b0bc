// Package api provides HTTP handlers for ScriptPipe endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/ScriptPipe/internal/export"
	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// validationErrors are configuration and input failures the client can fix.
var validationErrors = []error{
	models.ErrMissingExpert,
	models.ErrMissingAudience,
	models.ErrMissingCampaign,
	models.ErrInvalidDuration,
	models.ErrInvalidFormat,
	models.ErrInvalidGoal,
	models.ErrMissingProduct,
	models.ErrMissingGoalOther,
	models.ErrUnknownLead,
	models.ErrEmptyFeedback,
}

// statusForError maps workflow errors onto HTTP status codes. Phase and
// concurrency violations are conflicts, bad input is a bad request, and
// anything else reached the provider and failed there.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrBusy),
		errors.Is(err, models.ErrInvalidPhase),
		errors.Is(err, models.ErrNoLeadSelected),
		errors.Is(err, models.ErrNoActiveStage),
		errors.Is(err, models.ErrWorkflowNotCompleted):
		return http.StatusConflict
	}
	for _, verr := range validationErrors {
		if errors.Is(err, verr) {
			return http.StatusBadRequest
		}
	}
	return http.StatusBadGateway
}

// requireMethod enforces the HTTP method for a handler, writing the 405
// response itself when the method does not match.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		slog.Warn("Server: method not allowed", "method", r.Method, "path", r.URL.Path)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// stateHandler returns the current workflow state (GET /state).
func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.workflow.State()))
}

// generateLeadsHandler validates a script configuration and generates the
// candidate lead batch (POST /leads/generate). Calling it again regenerates
// the batch.
func (s *Server) generateLeadsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.generateLeadsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var cfg models.ScriptConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		slog.Warn("Server.generateLeadsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := s.workflow.GenerateLeads(r.Context(), cfg); err != nil {
		slog.Warn("Server.generateLeadsHandler: lead generation failed", "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Server.generateLeadsHandler: leads generated")
	writeJSONResponse(w, http.StatusOK, models.Success(s.workflow.State()))
}

// selectLeadHandler marks a candidate lead as chosen (POST /leads/select).
func (s *Server) selectLeadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.selectLeadHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := s.workflow.SelectLead(req.ID); err != nil {
		slog.Warn("Server.selectLeadHandler: selection failed", "error", err, "id", req.ID)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.workflow.State()))
}

// approveLeadHandler locks in the selected lead and starts stage generation
// (POST /leads/approve).
func (s *Server) approveLeadHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.workflow.ApproveLead(r.Context()); err != nil {
		// A partial stage may exist after a mid-stream failure; the returned
		// state lets the client decide to approve or refine it.
		slog.Warn("Server.approveLeadHandler: approval failed", "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Server.approveLeadHandler: lead approved")
	writeJSONResponse(w, http.StatusOK, models.Success(s.workflow.State()))
}

// approveStageHandler locks in the active stage and advances (POST
// /stages/approve).
func (s *Server) approveStageHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.workflow.ApproveStage(r.Context()); err != nil {
		slog.Warn("Server.approveStageHandler: approval failed", "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Server.approveStageHandler: stage approved")
	writeJSONResponse(w, http.StatusOK, models.Success(s.workflow.State()))
}

// refineStageHandler regenerates the active stage with feedback (POST
// /stages/refine).
func (s *Server) refineStageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.refineStageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := s.workflow.RefineStage(r.Context(), req.Feedback); err != nil {
		slog.Warn("Server.refineStageHandler: refinement failed", "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Server.refineStageHandler: stage refined")
	writeJSONResponse(w, http.StatusOK, models.Success(s.workflow.State()))
}

// restartHandler discards everything after the lead stage of a completed
// script and regenerates (POST /workflow/restart).
func (s *Server) restartHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.workflow.Restart(r.Context()); err != nil {
		slog.Warn("Server.restartHandler: restart failed", "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Server.restartHandler: workflow restarted")
	writeJSONResponse(w, http.StatusOK, models.Success(s.workflow.State()))
}

// resetHandler clears the workflow back to configuration (POST
// /workflow/reset). Destructive; clients are expected to confirm with the
// user first.
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.workflow.Reset(); err != nil {
		slog.Warn("Server.resetHandler: reset failed", "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Server.resetHandler: workflow reset")
	writeJSONResponse(w, http.StatusOK, models.Success(s.workflow.State()))
}

// encodedAttachments is the response body for POST /attachments/encode.
type encodedAttachments struct {
	Attachments []models.Attachment `json:"attachments"`
	Skipped     []string            `json:"skipped,omitempty"`
}

// encodeAttachmentsHandler encodes uploaded files into attachment payloads
// (POST /attachments/encode, multipart). Files over the size limit are
// skipped individually; the rest of the upload still succeeds.
func (s *Server) encodeAttachmentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.encodeAttachmentsHandler: processing upload", "method", r.Method)
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		slog.Warn("Server.encodeAttachmentsHandler: not a multipart request", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Expected multipart form data"))
		return
	}

	var result encodedAttachments
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Warn("Server.encodeAttachmentsHandler: failed to read part", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Malformed multipart form data"))
			return
		}
		name := part.FileName()
		if name == "" {
			part.Close()
			continue
		}
		att, encErr := s.encoder.Encode(name, part.Header.Get("Content-Type"), part)
		part.Close()
		if encErr != nil {
			if errors.Is(encErr, models.ErrAttachmentTooLarge) {
				slog.Warn("Server.encodeAttachmentsHandler: skipping oversized file", "name", name)
				result.Skipped = append(result.Skipped, name)
				continue
			}
			slog.Error("Server.encodeAttachmentsHandler: failed to encode file", "error", encErr, "name", name)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to encode attachment"))
			return
		}
		result.Attachments = append(result.Attachments, att)
	}

	slog.Info("Server.encodeAttachmentsHandler: upload processed", "encoded", len(result.Attachments), "skipped", len(result.Skipped))
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// exportHandler renders the completed script (GET /script/export). The
// format query parameter selects markdown (default) or html.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	state := s.workflow.State()
	if state.Phase != models.PhaseCompleted {
		slog.Warn("Server.exportHandler: workflow not completed", "phase", state.Phase)
		writeJSONResponse(w, http.StatusConflict, models.Error(models.ErrWorkflowNotCompleted.Error()))
		return
	}

	markdown := export.AssembleMarkdown(state.Stages)
	switch format := r.URL.Query().Get("format"); format {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		if _, err := w.Write([]byte(markdown)); err != nil {
			slog.Error("Server.exportHandler: failed to write markdown", "error", err)
		}
	case "html":
		html, err := export.RenderHTML(markdown)
		if err != nil {
			slog.Error("Server.exportHandler: failed to render HTML", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to render script"))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(html)); err != nil {
			slog.Error("Server.exportHandler: failed to write HTML", "error", err)
		}
	default:
		slog.Warn("Server.exportHandler: unknown format", "format", format)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown export format: "+format))
	}
}

// scriptsHandler lists archived scripts, newest first (GET /scripts).
func (s *Server) scriptsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.st == nil {
		writeJSONResponse(w, http.StatusOK, models.Success([]models.ScriptRecord{}))
		return
	}
	records, err := s.st.ListScripts()
	if err != nil {
		slog.Error("Server.scriptsHandler: failed to list scripts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch scripts"))
		return
	}
	slog.Debug("Server.scriptsHandler: scripts fetched", "count", len(records))
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// healthHandler provides a health check endpoint for monitoring and load
// balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	state := s.workflow.State()
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"phase":      state.Phase,
		"processing": state.Processing,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}
