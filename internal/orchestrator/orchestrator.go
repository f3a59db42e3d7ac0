// Package orchestrator implements the webhook-driven turn state machine.
//
// Every inbound telephony event is handled under a single mutex, so store
// mutations happen one at a time. Classification runs in its own goroutine
// and re-enters through the same mutex when it completes; the target turn is
// resolved by id at that point rather than captured by position.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/callsense/callsense/internal/core/domain"
	"github.com/callsense/callsense/internal/core/ports"
)

// SessionStore is the subset of the conversation store the orchestrator mutates.
type SessionStore interface {
	Create(callID string, startTime time.Time) bool
	Get(callID string) (domain.Session, bool)
	AppendTurn(callID string, in domain.TurnInput) (domain.Turn, bool)
	SetStatus(callID string, status domain.Status) bool
	AttachSentiment(ref domain.TurnRef, c domain.Classification) error
	Delete(callID string) bool
}

// Action is what the gateway should do after speaking.
type Action int

const (
	// ActionListen gathers the caller's next utterance.
	ActionListen Action = iota
	// ActionHangup ends the call.
	ActionHangup
)

func (a Action) String() string {
	if a == ActionHangup {
		return "hangup"
	}
	return "listen"
}

// Reply is the synchronous answer to a webhook event.
type Reply struct {
	Say  string
	Then Action
}

// Orchestrator drives each call through NEW, ACTIVE and TERMINATED.
type Orchestrator struct {
	mu sync.Mutex

	store      SessionStore
	classifier ports.Classifier
	terminator ports.CallTerminator
	logger     *slog.Logger

	prompts         Prompts
	phrases         map[string]struct{}
	classifyTimeout time.Duration
	now             func() time.Time

	inflight sync.WaitGroup
}

// New creates an orchestrator. terminator may be nil when outbound call
// control is not needed.
func New(store SessionStore, classifier ports.Classifier, terminator ports.CallTerminator, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:           store,
		classifier:      classifier,
		terminator:      terminator,
		logger:          logger,
		prompts:         DefaultPrompts(),
		classifyTimeout: DefaultClassifyTimeout,
		now:             time.Now,
	}
	WithTerminationPhrases(DefaultTerminationPhrases)(o)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Fallback is the apology-and-hangup reply used when an event cannot be handled.
func (o *Orchestrator) Fallback() Reply {
	return Reply{Say: o.prompts.Apology, Then: ActionHangup}
}

// CallStarted handles the call-started event. A duplicate start for an
// active session answers with the greeting again without recording it.
func (o *Orchestrator) CallStarted(ctx context.Context, callID string) (Reply, error) {
	_, span := tracer.Start(ctx, "call started", trace.WithAttributes(attribute.String("call.id", callID)))
	defer span.End()

	if callID == "" {
		return o.fail(span, domain.ErrMissingCallID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if session, exists := o.store.Get(callID); exists {
		if session.Status.IsTerminal() {
			return o.terminalReply(span, session), nil
		}
		o.logger.Info("duplicate call start", slog.String("call_id", callID))
		span.SetAttributes(attribute.Bool("call.duplicate", true))
		return Reply{Say: o.prompts.Greeting, Then: ActionListen}, nil
	}

	now := o.now()
	o.store.Create(callID, now)
	o.store.AppendTurn(callID, domain.TurnInput{Role: domain.RoleSystem, Text: o.prompts.Greeting, Timestamp: now})

	return Reply{Say: o.prompts.Greeting, Then: ActionListen}, nil
}

// SpeechCaptured handles a speech result. confidence is the recognizer's
// score and is only logged.
func (o *Orchestrator) SpeechCaptured(ctx context.Context, callID, transcript string, confidence float64) (Reply, error) {
	ctx, span := tracer.Start(ctx, "speech captured", trace.WithAttributes(
		attribute.String("call.id", callID),
		attribute.Float64("speech.confidence", confidence),
	))
	defer span.End()

	if callID == "" {
		return o.fail(span, domain.ErrMissingCallID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	session, exists := o.store.Get(callID)
	if exists && session.Status.IsTerminal() {
		return o.terminalReply(span, session), nil
	}

	text := strings.TrimSpace(transcript)
	if text == "" {
		o.logger.Debug("empty speech result", slog.String("call_id", callID))
		return Reply{Say: o.prompts.Repeat, Then: ActionListen}, nil
	}

	o.logger.Info("speech captured",
		slog.String("call_id", callID),
		slog.Float64("confidence", confidence),
	)

	now := o.now()
	if !exists {
		o.logger.Warn("speech for unknown call, creating session", slog.String("call_id", callID))
		o.store.Create(callID, now)
		session, _ = o.store.Get(callID)
	}

	if o.isTermination(text) {
		span.SetAttributes(attribute.Bool("call.terminating", true))
		o.store.AppendTurn(callID, domain.TurnInput{Role: domain.RoleUser, Text: text, Timestamp: now})
		o.store.AppendTurn(callID, domain.TurnInput{Role: domain.RoleSystem, Text: o.prompts.Farewell, Timestamp: now})
		o.store.SetStatus(callID, domain.StatusCompleted)
		return Reply{Say: o.prompts.Farewell, Then: ActionHangup}, nil
	}

	turn, ok := o.store.AppendTurn(callID, domain.TurnInput{Role: domain.RoleUser, Text: text, Timestamp: now})
	if !ok {
		return o.fail(span, fmt.Errorf("record user turn for %s: %w", callID, domain.ErrSessionNotFound))
	}
	o.classifyAsync(ctx, domain.TurnRef{CallID: callID, Generation: session.Generation, TurnID: turn.ID}, turn.Text)
	o.store.AppendTurn(callID, domain.TurnInput{Role: domain.RoleSystem, Text: o.prompts.Acknowledgement, Timestamp: now})

	return Reply{Say: o.prompts.Acknowledgement, Then: ActionListen}, nil
}

// CallEnded applies a terminal status reported by the gateway. Absent and
// already terminal sessions are left alone.
func (o *Orchestrator) CallEnded(ctx context.Context, callID string, status domain.Status) error {
	_, span := tracer.Start(ctx, "call ended", trace.WithAttributes(
		attribute.String("call.id", callID),
		attribute.String("call.status", string(status)),
	))
	defer span.End()

	if callID == "" {
		span.RecordError(domain.ErrMissingCallID)
		span.SetStatus(codes.Error, domain.ErrMissingCallID.Error())
		return domain.ErrMissingCallID
	}
	if !status.IsTerminal() {
		return fmt.Errorf("call ended with non-terminal status %q", status)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.store.SetStatus(callID, status) {
		o.logger.Debug("call end ignored", slog.String("call_id", callID), slog.String("status", string(status)))
	}
	return nil
}

// EndCall asks the gateway to hang up and marks the session completed once
// the gateway accepted the command.
func (o *Orchestrator) EndCall(ctx context.Context, callID string) error {
	ctx, span := tracer.Start(ctx, "end call", trace.WithAttributes(attribute.String("call.id", callID)))
	defer span.End()

	if callID == "" {
		return domain.ErrMissingCallID
	}
	if o.terminator == nil {
		return fmt.Errorf("end call %s: no call terminator configured", callID)
	}

	if err := o.terminator.EndCall(ctx, callID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("end call %s: %w", callID, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.store.SetStatus(callID, domain.StatusCompleted)
	return nil
}

// Delete removes a session regardless of its status.
func (o *Orchestrator) Delete(callID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.store.Delete(callID)
}

// Wait blocks until in-flight classifications finish or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyAsync runs one classification attempt for the turn ref points at,
// off the event path.
// Must be called with o.mu held.
func (o *Orchestrator) classifyAsync(parent context.Context, ref domain.TurnRef, text string) {
	link := trace.LinkFromContext(parent)

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()

		// Detached from the webhook request, bounded by the classify timeout.
		ctx, cancel := context.WithTimeout(context.Background(), o.classifyTimeout)
		defer cancel()

		ctx, span := tracer.Start(ctx, "classify turn",
			trace.WithLinks(link),
			trace.WithAttributes(
				attribute.String("call.id", ref.CallID),
				attribute.String("turn.id", ref.TurnID),
			),
		)
		defer span.End()

		start := time.Now()
		result := o.classifier.Analyze(ctx, text)
		span.SetAttributes(
			attribute.String("sentiment.label", result.Label),
			attribute.Float64("sentiment.confidence", result.Confidence),
		)

		if !result.OK() {
			if result.Err != nil {
				span.RecordError(result.Err)
				span.SetStatus(codes.Error, result.Error)
			}
			o.logger.Warn("classification failed",
				slog.String("call_id", ref.CallID),
				slog.String("turn_id", ref.TurnID),
				slog.String("error", result.Error),
				slog.Duration("duration", time.Since(start)),
			)
			return
		}

		o.mu.Lock()
		defer o.mu.Unlock()

		if err := o.store.AttachSentiment(ref, result); err != nil {
			o.logger.Info("classification discarded",
				slog.String("call_id", ref.CallID),
				slog.String("turn_id", ref.TurnID),
				slog.String("reason", err.Error()),
			)
			return
		}
		o.logger.Debug("classification attached",
			slog.String("call_id", ref.CallID),
			slog.String("turn_id", ref.TurnID),
			slog.Duration("duration", time.Since(start)),
		)
	}()
}

func (o *Orchestrator) terminalReply(span trace.Span, session domain.Session) Reply {
	o.logger.Debug("event for terminal session ignored",
		slog.String("call_id", session.CallID),
		slog.String("status", string(session.Status)),
	)
	span.SetAttributes(attribute.Bool("call.terminal", true))
	return Reply{Say: o.prompts.Farewell, Then: ActionHangup}
}

func (o *Orchestrator) fail(span trace.Span, err error) (Reply, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.logger.Error("webhook event failed", slog.String("error", err.Error()))
	return o.Fallback(), err
}

func (o *Orchestrator) isTermination(text string) bool {
	_, ok := o.phrases[normalizePhrase(text)]
	return ok
}

// normalizePhrase lowercases and strips the punctuation recognizers add to
// single-word answers.
func normalizePhrase(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!?,")
	return strings.ToLower(strings.TrimSpace(s))
}
