// Package app wires the conversation core, its integrations and the HTTP
// surface into one process and manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callsense/callsense/internal/api/conversations"
	"github.com/callsense/callsense/internal/broadcast"
	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/internal/core/ports"
	"github.com/callsense/callsense/internal/orchestrator"
	"github.com/callsense/callsense/internal/server"
	"github.com/callsense/callsense/internal/storage/memory"
	"github.com/callsense/callsense/internal/telephony/twilio"
	"github.com/callsense/callsense/internal/voice"
)

// StreamPath serves the live update websocket.
const StreamPath = "/api/conversations/stream"

// App owns every long-lived component.
type App struct {
	cfg *config.Config

	// Dependencies (injected via options or built from cfg)
	classifier ports.Classifier
	terminator ports.CallTerminator
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	store  *memory.Store
	hub    *broadcast.Hub
	orch   *orchestrator.Orchestrator
	server *server.Server

	mu       sync.Mutex
	shutdown bool
}

// New builds the application from cfg. Options take precedence over the
// integrations cfg selects.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if a.classifier == nil {
		c, err := NewClassifier(cfg.Classifier, a.httpClient, a.logger)
		if err != nil {
			return nil, err
		}
		a.classifier = c
	}
	if a.terminator == nil {
		t, err := NewTerminator(cfg.Telephony, a.logger)
		if err != nil {
			return nil, err
		}
		a.terminator = t
	}

	a.store = memory.New(a.logger.With(slog.String("component", "store")), memory.WithClock(a.now))
	a.hub = broadcast.New(a.store, a.logger.With(slog.String("component", "broadcast")))
	a.store.SetObserver(a.hub)

	a.orch = orchestrator.New(a.store, a.classifier, a.terminator,
		a.logger.With(slog.String("component", "orchestrator")),
		orchestrator.WithClock(a.now),
		orchestrator.WithClassifyTimeout(cfg.Classifier.Timeout),
		orchestrator.WithTerminationPhrases(cfg.Conversation.TerminationPhrases),
		orchestrator.WithPrompts(orchestrator.Prompts{
			Greeting:        cfg.Conversation.Prompts.Greeting,
			Repeat:          cfg.Conversation.Prompts.Repeat,
			Acknowledgement: cfg.Conversation.Prompts.Acknowledgement,
			Farewell:        cfg.Conversation.Prompts.Farewell,
			Apology:         cfg.Conversation.Prompts.Apology,
		}),
	)

	a.server = server.New(cfg.Server.Port, a.logger)
	a.routes(a.server.Router)

	return a, nil
}

func (a *App) routes(r chi.Router) {
	script := voice.DefaultScript()
	if a.cfg.Telephony.Voice != "" {
		script.Voice = a.cfg.Telephony.Voice
	}
	if a.cfg.Telephony.Language != "" {
		script.Language = a.cfg.Telephony.Language
	}

	var verifier server.RequestVerifier
	if tw := a.cfg.Telephony.Twilio; tw.ValidateSignatures {
		verifier = twilio.NewSignatureValidator(tw.AuthToken, tw.PublicURL)
	}

	timeout := a.cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	r.Group(func(r chi.Router) {
		r.Use(server.TimeoutMiddleware(timeout))
		r.Use(server.SignatureMiddleware(verifier))
		voice.NewHandler(a.orch, script, a.logger).Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(server.TimeoutMiddleware(timeout))
		conversations.NewServer(a.store, a.orch, a.classifier, a.logger).Register(r)
	})

	// Long-lived; no request timeout.
	r.Get(StreamPath, broadcast.Handler(a.hub, a.logger))
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Store exposes the conversation store for read access.
func (a *App) Store() *memory.Store {
	return a.store
}

// Start serves HTTP until Shutdown.
func (a *App) Start() error {
	a.logger.Info("callsense started",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("classifier", a.cfg.Classifier.Type),
		slog.Bool("classifier_ready", a.classifier.Ready()),
		slog.String("telephony", a.cfg.Telephony.Type))
	return a.server.Start()
}

// Shutdown stops the server, lets in-flight classifications settle and
// disconnects live subscribers. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	a.logger.Info("shutting down")

	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		firstErr = err
	}
	if err := a.orch.Wait(ctx); err != nil {
		a.logger.Warn("classifications still pending at shutdown", slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = err
		}
	}
	a.hub.CloseAll()

	a.logger.Info("shutdown complete")
	return firstErr
}

// Wait blocks until pending classifications finish or ctx is done.
func (a *App) Wait(ctx context.Context) error {
	return a.orch.Wait(ctx)
}
