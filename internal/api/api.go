// Package api provides HTTP handlers and the main API server logic for ScriptPipe.
//
// It exposes RESTful endpoints for configuring a script run, generating and
// selecting leads, approving and refining stages, and exporting the finished
// script. The API integrates with the flow, genai, attachment and store
// modules.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ScriptPipe/internal/attachment"
	"github.com/BTreeMap/ScriptPipe/internal/flow"
	"github.com/BTreeMap/ScriptPipe/internal/genai"
	"github.com/BTreeMap/ScriptPipe/internal/store"
)

// DefaultAddr is the default API server listen address.
const DefaultAddr = ":8080"

// Supported generation provider backends.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr     string
	Provider string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithProvider selects the generation backend (ProviderOpenAI or
// ProviderGemini).
func WithProvider(name string) Option {
	return func(o *Opts) {
		o.Provider = name
	}
}

// Server exposes the workflow over HTTP.
type Server struct {
	workflow *flow.Workflow
	st       store.Store
	encoder  *attachment.Encoder
}

// NewServer creates a server around an already-constructed workflow.
func NewServer(wf *flow.Workflow, st store.Store, enc *attachment.Encoder) *Server {
	if enc == nil {
		enc = attachment.NewEncoder()
	}
	return &Server{workflow: wf, st: st, encoder: enc}
}

// Handler returns the routed HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.stateHandler)
	mux.HandleFunc("/leads/generate", s.generateLeadsHandler)
	mux.HandleFunc("/leads/select", s.selectLeadHandler)
	mux.HandleFunc("/leads/approve", s.approveLeadHandler)
	mux.HandleFunc("/stages/approve", s.approveStageHandler)
	mux.HandleFunc("/stages/refine", s.refineStageHandler)
	mux.HandleFunc("/workflow/restart", s.restartHandler)
	mux.HandleFunc("/workflow/reset", s.resetHandler)
	mux.HandleFunc("/attachments/encode", s.encodeAttachmentsHandler)
	mux.HandleFunc("/script/export", s.exportHandler)
	mux.HandleFunc("/scripts", s.scriptsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run wires the configured modules together and serves the API until the
// listener fails.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := Opts{Addr: DefaultAddr, Provider: ProviderOpenAI}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	provider, err := buildProvider(context.Background(), cfg.Provider, genaiOpts)
	if err != nil {
		slog.Error("Server.Run: failed to create generation provider", "error", err, "provider", cfg.Provider)
		return err
	}

	st, err := buildStore(storeOpts)
	if err != nil {
		slog.Error("Server.Run: failed to create store", "error", err)
		return err
	}
	defer st.Close()

	wf := flow.NewWorkflow(provider, flow.WithStore(st))
	srv := NewServer(wf, st, attachment.NewEncoder())

	slog.Info("ScriptPipe API running", "addr", cfg.Addr, "provider", cfg.Provider)
	return http.ListenAndServe(cfg.Addr, srv.Handler())
}

// buildProvider constructs the selected generation backend.
func buildProvider(ctx context.Context, name string, opts []genai.Option) (genai.Provider, error) {
	switch name {
	case ProviderGemini:
		return genai.NewGeminiClient(ctx, opts...)
	case ProviderOpenAI, "":
		return genai.NewOpenAIClient(opts...)
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// buildStore selects a storage backend from the DSN. No DSN means the
// in-memory store; archived scripts then live only for the process lifetime.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("Server.buildStore: no DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		slog.Debug("Server.buildStore: detected PostgreSQL DSN")
		return store.NewPostgresStore(opts...)
	}
	slog.Debug("Server.buildStore: detected SQLite DSN", "db_path", cfg.DSN)
	return store.NewSQLiteStore(opts...)
}
