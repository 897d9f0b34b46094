// Package api provides HTTP handlers and the main API server logic for VIVA.
//
// It exposes RESTful endpoints for creating surveys, running interview
// sessions, and reading dashboard statistics. The API integrates the
// interview controller, the question generator, and the transcript store.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vivalabs/viva/internal/genai"
	"github.com/vivalabs/viva/internal/interview"
	"github.com/vivalabs/viva/internal/models"
	"github.com/vivalabs/viva/internal/store"
)

// Default server configuration constants
const (
	// DefaultAddr is the default API listen address.
	DefaultAddr = ":8080"
	// DefaultMaxProbes is the survey probe limit applied when a create
	// request leaves it unset.
	DefaultMaxProbes = 3
	// DefaultLanguage is the interview language applied when a create
	// request leaves it unset.
	DefaultLanguage = models.LanguageEnglish
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	DefaultMaxProbes int
	DefaultLanguage  models.Language
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithDefaultMaxProbes sets the probe limit used for surveys created
// without one.
func WithDefaultMaxProbes(n int) Option {
	return func(o *Opts) { o.DefaultMaxProbes = n }
}

// WithDefaultLanguage sets the language used for surveys created without one.
func WithDefaultLanguage(l models.Language) Option {
	return func(o *Opts) { o.DefaultLanguage = l }
}

// Server wires the HTTP layer to the interview controller and the store.
type Server struct {
	st               store.Store
	ctrl             *interview.Controller
	addr             string
	defaultMaxProbes int
	defaultLanguage  models.Language
}

// NewServer creates an API server with its dependencies.
func NewServer(st store.Store, ctrl *interview.Controller, opts ...Option) *Server {
	cfg := Opts{
		Addr:             DefaultAddr,
		DefaultMaxProbes: DefaultMaxProbes,
		DefaultLanguage:  DefaultLanguage,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		st:               st,
		ctrl:             ctrl,
		addr:             cfg.Addr,
		defaultMaxProbes: cfg.DefaultMaxProbes,
		defaultLanguage:  cfg.DefaultLanguage,
	}
}

// Handler builds the route table for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/surveys", s.surveysHandler)
	mux.HandleFunc("/surveys/", s.surveyByIDHandler)
	mux.HandleFunc("/sessions", s.sessionsHandler)
	mux.HandleFunc("/sessions/", s.sessionByIDHandler)
	return mux
}

// Run boots the full service: it opens the configured store, builds the
// question generator and interview controller, and serves the API until the
// listener fails. The store lifecycle is owned here: it is closed when Run
// returns.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	ctrl := interview.NewController(st, buildGenerator(genaiOpts))
	srv := NewServer(st, ctrl, apiOpts...)

	slog.Info("VIVA API running", "addr", srv.addr)
	return http.ListenAndServe(srv.addr, srv.Handler())
}

// buildGenerator returns the GenAI-backed question generator, or the canned
// fallback probes when no API key is configured so keyless dev deployments
// still run.
func buildGenerator(genaiOpts []genai.Option) interview.QuestionGenerator {
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("GenAI client unavailable, falling back to canned follow-up questions", "error", err)
		return &interview.StaticGenerator{Questions: interview.FallbackQuestions}
	}
	return interview.NewGenAIGenerator(client)
}
