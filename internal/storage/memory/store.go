// Package memory provides the authoritative in-memory registry of call
// sessions and their turns.
package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/callsense/callsense/internal/core/domain"
	"github.com/callsense/callsense/internal/core/ports"
)

// Store is the in-memory conversation store. Every mutation runs under one
// mutex, and the observer is notified before the mutex is released, so
// observers see mutations in the order they happened.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	order    []string
	created  uint64
	observer ports.SessionObserver
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp end times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new in-memory store
func New(logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		sessions: make(map[string]*domain.Session),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetObserver registers the single observer notified on every mutation.
func (s *Store) SetObserver(o ports.SessionObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Create inserts a new in-progress session if none exists for callID.
// A duplicate create is logged and ignored. Reports whether a session was created.
func (s *Store) Create(callID string, startTime time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[callID]; exists {
		s.logger.Warn("session already exists", slog.String("call_id", callID))
		return false
	}

	s.created++
	session := &domain.Session{
		CallID:     callID,
		Status:     domain.StatusInProgress,
		StartTime:  startTime,
		Turns:      []domain.Turn{},
		Generation: s.created,
	}
	s.sessions[callID] = session
	s.order = append(s.order, callID)

	s.logger.Info("session created", slog.String("call_id", callID))
	s.changedLocked(session)
	return true
}

// Get returns a copy of the session for callID.
func (s *Store) Get(callID string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[callID]
	if !exists {
		return domain.Session{}, false
	}
	return session.Clone(), true
}

// AppendTurn appends a turn and assigns its sequence id. It is a logged no-op
// when the session is absent or terminal.
func (s *Store) AppendTurn(callID string, in domain.TurnInput) (domain.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[callID]
	if !exists {
		s.logger.Error("no session for turn", slog.String("call_id", callID))
		return domain.Turn{}, false
	}
	if session.Status.IsTerminal() {
		s.logger.Warn("turn rejected for terminal session",
			slog.String("call_id", callID),
			slog.String("status", string(session.Status)),
		)
		return domain.Turn{}, false
	}

	turn := domain.Turn{
		ID:        turnID(callID, len(session.Turns)),
		Role:      in.Role,
		Text:      in.Text,
		Timestamp: in.Timestamp,
	}
	session.Turns = append(session.Turns, turn)

	s.logger.Debug("turn appended",
		slog.String("call_id", callID),
		slog.String("turn_id", turn.ID),
		slog.String("role", string(turn.Role)),
	)
	s.changedLocked(session)
	return turn, true
}

// SetStatus transitions a session. It is a no-op when the session is absent
// or already terminal. Terminal transitions stamp the end time and also emit
// a session-ended notification.
func (s *Store) SetStatus(callID string, status domain.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[callID]
	if !exists {
		s.logger.Error("no session for status update", slog.String("call_id", callID))
		return false
	}
	if session.Status.IsTerminal() {
		s.logger.Debug("status update ignored for terminal session",
			slog.String("call_id", callID),
			slog.String("status", string(session.Status)),
			slog.String("requested", string(status)),
		)
		return false
	}
	if session.Status == status {
		return false
	}

	session.Status = status
	if status.IsTerminal() {
		end := s.now()
		session.EndTime = &end
	}

	s.logger.Info("session status updated",
		slog.String("call_id", callID),
		slog.String("status", string(status)),
	)
	s.changedLocked(session)
	if status.IsTerminal() {
		s.endedLocked(session)
	}
	return true
}

// AttachSentiment sets the sentiment of the user turn identified by ref.
// The turn is resolved at call time: the result is refused when the session
// is gone, re-created since ref was taken, or terminal, and when the turn is
// missing, already labeled, or a newer user turn exists.
func (s *Store) AttachSentiment(ref domain.TurnRef, c domain.Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	callID, turnID := ref.CallID, ref.TurnID
	session, exists := s.sessions[callID]
	if !exists {
		return fmt.Errorf("attach sentiment to %s: %w", callID, domain.ErrSessionNotFound)
	}
	if session.Generation != ref.Generation {
		return fmt.Errorf("attach sentiment to %s: %w", turnID, domain.ErrSessionReplaced)
	}
	if session.Status.IsTerminal() {
		return fmt.Errorf("attach sentiment to %s: %w", callID, domain.ErrSessionTerminal)
	}

	idx := -1
	for i := range session.Turns {
		if session.Turns[i].ID == turnID {
			idx = i
			break
		}
	}
	if idx < 0 || session.Turns[idx].Role != domain.RoleUser {
		return fmt.Errorf("attach sentiment to %s: %w", turnID, domain.ErrTurnNotFound)
	}
	if session.Turns[idx].HasSentiment() {
		return fmt.Errorf("attach sentiment to %s: %w", turnID, domain.ErrSentimentAlreadySet)
	}
	if session.LastUserTurn() != idx {
		return fmt.Errorf("attach sentiment to %s: %w", turnID, domain.ErrTurnSuperseded)
	}

	session.Turns[idx].Sentiment = c.Label
	session.Turns[idx].Confidence = c.Confidence

	s.logger.Info("sentiment attached",
		slog.String("call_id", callID),
		slog.String("turn_id", turnID),
		slog.String("sentiment", c.Label),
	)
	s.changedLocked(session)
	return nil
}

// List returns a snapshot of all sessions in creation order.
func (s *Store) List() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// Snapshot runs fn with the current session list while holding the store
// lock, so no mutation can be observed between the snapshot and whatever fn
// registers. fn must not call back into the store.
func (s *Store) Snapshot(fn func([]domain.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.listLocked())
}

// Delete removes a session regardless of status and emits session-ended if
// it existed.
func (s *Store) Delete(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[callID]
	if !exists {
		return false
	}

	delete(s.sessions, callID)
	for i, id := range s.order {
		if id == callID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.logger.Info("session deleted", slog.String("call_id", callID))
	s.endedLocked(session)
	return true
}

func (s *Store) listLocked() []domain.Session {
	result := make([]domain.Session, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.sessions[id].Clone())
	}
	return result
}

func (s *Store) changedLocked(session *domain.Session) {
	if s.observer != nil {
		s.observer.SessionChanged(session.Clone())
	}
}

func (s *Store) endedLocked(session *domain.Session) {
	if s.observer != nil {
		s.observer.SessionEnded(session.Clone())
	}
}

func turnID(callID string, position int) string {
	return fmt.Sprintf("%s-%d", callID, position)
}
