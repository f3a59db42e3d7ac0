// Package voice serves the telephony webhooks. Every call event is answered
// with a TwiML document, falling back to an apology and hangup on failure.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/callsense/callsense/internal/core/domain"
	"github.com/callsense/callsense/internal/orchestrator"
	"github.com/callsense/callsense/internal/server"
)

// Conversation is the turn state machine the webhooks drive.
type Conversation interface {
	CallStarted(ctx context.Context, callID string) (orchestrator.Reply, error)
	SpeechCaptured(ctx context.Context, callID, transcript string, confidence float64) (orchestrator.Reply, error)
	CallEnded(ctx context.Context, callID string, status domain.Status) error
	Fallback() orchestrator.Reply
}

// Handler serves /voice, /voice/respond and /voice/status.
type Handler struct {
	conv   Conversation
	script Script
	logger *slog.Logger
}

// NewHandler creates the webhook handler.
func NewHandler(conv Conversation, script Script, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{conv: conv, script: script, logger: logger}
}

// Register mounts the webhook routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/voice", h.HandleCallStarted)
	r.Post("/voice/respond", h.HandleSpeech)
	r.Post("/voice/status", h.HandleStatus)
}

// HandleCallStarted answers a new inbound call.
func (h *Handler) HandleCallStarted(w http.ResponseWriter, r *http.Request) {
	defer h.recoverTwiML(w, r)

	callID := r.FormValue("CallSid")
	server.AddLogField(r.Context(), "call_id", callID)

	reply, err := h.conv.CallStarted(r.Context(), callID)
	if err != nil {
		server.AddError(r.Context(), err)
	}
	h.writeReply(w, r, reply)
}

// HandleSpeech answers a speech result, including empty ones.
func (h *Handler) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	defer h.recoverTwiML(w, r)

	callID := r.FormValue("CallSid")
	server.AddLogField(r.Context(), "call_id", callID)

	confidence, _ := strconv.ParseFloat(r.FormValue("Confidence"), 64)
	reply, err := h.conv.SpeechCaptured(r.Context(), callID, r.FormValue("SpeechResult"), confidence)
	if err != nil {
		server.AddError(r.Context(), err)
	}
	h.writeReply(w, r, reply)
}

// HandleStatus applies the gateway's final call status. Intermediate
// statuses are acknowledged and ignored.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	callID := r.FormValue("CallSid")
	callStatus := r.FormValue("CallStatus")
	server.AddLogField(r.Context(), "call_id", callID)
	server.AddLogField(r.Context(), "call_status", callStatus)

	if status, ok := sessionStatus(callStatus); ok {
		if err := h.conv.CallEnded(r.Context(), callID, status); err != nil {
			server.AddError(r.Context(), err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// sessionStatus maps a gateway call status to a terminal session status.
func sessionStatus(callStatus string) (domain.Status, bool) {
	switch strings.ToLower(callStatus) {
	case "completed":
		return domain.StatusCompleted, true
	case "failed", "busy", "no-answer", "canceled":
		return domain.StatusError, true
	default:
		return "", false
	}
}

func (h *Handler) writeReply(w http.ResponseWriter, r *http.Request, reply orchestrator.Reply) {
	doc, err := h.script.Render(reply)
	if err != nil {
		server.AddError(r.Context(), fmt.Errorf("render twiml: %w", err))
		doc = fallbackTwiML
	}
	writeTwiML(w, doc)
}

func (h *Handler) recoverTwiML(w http.ResponseWriter, r *http.Request) {
	rec := recover()
	if rec == nil {
		return
	}
	err := fmt.Errorf("voice webhook panic: %v", rec)
	h.logger.Error("voice webhook panic",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	server.AddError(r.Context(), err)

	doc, renderErr := h.script.Render(h.conv.Fallback())
	if renderErr != nil {
		doc = fallbackTwiML
	}
	writeTwiML(w, doc)
}

func writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
