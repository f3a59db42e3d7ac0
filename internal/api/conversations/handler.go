// Package conversations serves the REST query, deletion and hangup surface
// over the conversation store.
package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/callsense/callsense/internal/core/domain"
	"github.com/callsense/callsense/internal/server"
)

// Reader is the read side of the conversation store.
type Reader interface {
	List() []domain.Session
	Get(callID string) (domain.Session, bool)
}

// Controller performs the mutating operations; the orchestrator implements it.
type Controller interface {
	Delete(callID string) bool
	EndCall(ctx context.Context, callID string) error
}

// ReadyChecker reports whether the classifier can produce labels.
type ReadyChecker interface {
	Ready() bool
}

// Server serves /api/conversations and /healthz.
type Server struct {
	sessions   Reader
	control    Controller
	classifier ReadyChecker
	logger     *slog.Logger
}

// NewServer creates the REST handler set.
func NewServer(sessions Reader, control Controller, classifier ReadyChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sessions:   sessions,
		control:    control,
		classifier: classifier,
		logger:     logger,
	}
}

// Register mounts the routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/conversations", s.handleList)
	r.Get("/api/conversations/{callId}", s.handleGet)
	r.Delete("/api/conversations/{callId}", s.handleDelete)
	r.Post("/api/conversations/{callId}/hangup", s.handleHangup)
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status          string `json:"status"`
	ClassifierReady bool   `json:"classifier_ready"`
	Sessions        int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		ClassifierReady: s.classifier != nil && s.classifier.Ready(),
		Sessions:        len(s.sessions.List()),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	server.AddLogField(r.Context(), "call_id", callID)

	session, ok := s.sessions.Get(callID)
	if !ok {
		writeError(w, domain.ErrNotFound("conversation "+callID+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	server.AddLogField(r.Context(), "call_id", callID)

	if !s.control.Delete(callID) {
		server.AddLogField(r.Context(), "deleted", "false")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHangup(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	server.AddLogField(r.Context(), "call_id", callID)

	if err := s.control.EndCall(r.Context(), callID); err != nil {
		server.AddError(r.Context(), err)
		if errors.Is(err, domain.ErrMissingCallID) {
			writeError(w, domain.ErrInvalidRequest("call id is required"))
			return
		}
		s.logger.Error("hangup failed",
			slog.String("call_id", callID),
			slog.String("error", err.Error()),
		)
		writeError(w, domain.ErrUpstream("failed to end call: "+err.Error()))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type errorResponse struct {
	Error *domain.APIError `json:"error"`
}

func writeError(w http.ResponseWriter, apiErr *domain.APIError) {
	writeJSON(w, apiErr.HTTPStatusCode(), errorResponse{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
