package memory

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/callsense/callsense/internal/core/domain"
)

type recordedEvent struct {
	kind    domain.EventType
	session domain.Session
}

// recordingObserver captures notifications in the order the store emits them.
type recordingObserver struct {
	events []recordedEvent
}

func (o *recordingObserver) SessionChanged(s domain.Session) {
	o.events = append(o.events, recordedEvent{kind: domain.EventSessionChanged, session: s})
}

func (o *recordingObserver) SessionEnded(s domain.Session) {
	o.events = append(o.events, recordedEvent{kind: domain.EventSessionEnded, session: s})
}

func newTestStore(t *testing.T) (*Store, *recordingObserver) {
	t.Helper()
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := New(slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(func() time.Time { return fixed }))
	obs := &recordingObserver{}
	store.SetObserver(obs)
	return store, obs
}

func userTurn(text string) domain.TurnInput {
	return domain.TurnInput{Role: domain.RoleUser, Text: text, Timestamp: time.Now()}
}

func TestMemoryStore_CreateConversation(t *testing.T) {
	store, obs := newTestStore(t)

	if !store.Create("CA1", time.Now()) {
		t.Fatal("Create() = false, want true")
	}

	retrieved, ok := store.Get("CA1")
	if !ok {
		t.Fatal("Get() returned no session")
	}
	if retrieved.Status != domain.StatusInProgress {
		t.Errorf("Status = %v, want %v", retrieved.Status, domain.StatusInProgress)
	}
	if retrieved.EndTime != nil {
		t.Errorf("EndTime = %v, want nil", retrieved.EndTime)
	}
	if len(obs.events) != 1 || obs.events[0].kind != domain.EventSessionChanged {
		t.Fatalf("events = %+v, want one changed event", obs.events)
	}
}

func TestMemoryStore_DuplicateCreateIsNoop(t *testing.T) {
	store, obs := newTestStore(t)

	store.Create("CA1", time.Now())
	store.AppendTurn("CA1", domain.TurnInput{Role: domain.RoleSystem, Text: "hello"})

	if store.Create("CA1", time.Now()) {
		t.Error("second Create() = true, want false")
	}

	sessions := store.List()
	if len(sessions) != 1 {
		t.Fatalf("List() count = %d, want 1", len(sessions))
	}
	if len(sessions[0].Turns) != 1 {
		t.Errorf("turns = %d, want 1", len(sessions[0].Turns))
	}
	if len(obs.events) != 2 {
		t.Errorf("events = %d, want 2 (create + append)", len(obs.events))
	}
}

func TestMemoryStore_AppendTurnOrderAndIDs(t *testing.T) {
	store, _ := newTestStore(t)
	store.Create("CA1", time.Now())

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		if _, ok := store.AppendTurn("CA1", userTurn(text)); !ok {
			t.Fatalf("AppendTurn(%q) failed", text)
		}
	}

	session, _ := store.Get("CA1")
	if len(session.Turns) != len(texts) {
		t.Fatalf("turns = %d, want %d", len(session.Turns), len(texts))
	}
	for i, turn := range session.Turns {
		if turn.Text != texts[i] {
			t.Errorf("turn %d text = %q, want %q", i, turn.Text, texts[i])
		}
		if want := "CA1-" + string(rune('0'+i)); turn.ID != want {
			t.Errorf("turn %d id = %q, want %q", i, turn.ID, want)
		}
	}
}

func TestMemoryStore_AppendTurnMissingSession(t *testing.T) {
	store, obs := newTestStore(t)

	if _, ok := store.AppendTurn("missing", userTurn("hi")); ok {
		t.Error("AppendTurn() on missing session = true, want false")
	}
	if len(obs.events) != 0 {
		t.Errorf("events = %d, want 0", len(obs.events))
	}
}

func TestMemoryStore_SetStatusCompleted(t *testing.T) {
	store, obs := newTestStore(t)
	store.Create("CA1", time.Now())
	obs.events = nil

	if !store.SetStatus("CA1", domain.StatusCompleted) {
		t.Fatal("SetStatus() = false, want true")
	}

	session, _ := store.Get("CA1")
	if session.EndTime == nil {
		t.Fatal("EndTime not set on completion")
	}
	if len(obs.events) != 2 {
		t.Fatalf("events = %d, want 2", len(obs.events))
	}
	if obs.events[0].kind != domain.EventSessionChanged || obs.events[1].kind != domain.EventSessionEnded {
		t.Errorf("event kinds = %v, %v", obs.events[0].kind, obs.events[1].kind)
	}
}

func TestMemoryStore_TerminalIsAbsorbing(t *testing.T) {
	store, obs := newTestStore(t)
	store.Create("CA1", time.Now())
	store.SetStatus("CA1", domain.StatusCompleted)
	first, _ := store.Get("CA1")
	obs.events = nil

	if store.SetStatus("CA1", domain.StatusError) {
		t.Error("SetStatus() on terminal session = true, want false")
	}
	if _, ok := store.AppendTurn("CA1", userTurn("late")); ok {
		t.Error("AppendTurn() on terminal session = true, want false")
	}

	after, _ := store.Get("CA1")
	if after.Status != domain.StatusCompleted {
		t.Errorf("Status = %v, want completed", after.Status)
	}
	if !after.EndTime.Equal(*first.EndTime) {
		t.Errorf("EndTime changed: %v -> %v", first.EndTime, after.EndTime)
	}
	if len(obs.events) != 0 {
		t.Errorf("events = %d, want 0", len(obs.events))
	}
}

func refFor(s *Store, callID string, turn domain.Turn) domain.TurnRef {
	session, _ := s.Get(callID)
	return domain.TurnRef{CallID: callID, Generation: session.Generation, TurnID: turn.ID}
}

func TestMemoryStore_AttachSentiment(t *testing.T) {
	store, obs := newTestStore(t)
	store.Create("CA1", time.Now())
	turn, _ := store.AppendTurn("CA1", userTurn("I am angry"))
	store.AppendTurn("CA1", domain.TurnInput{Role: domain.RoleSystem, Text: "ack"})
	obs.events = nil

	err := store.AttachSentiment(refFor(store, "CA1", turn), domain.Classification{Label: "angry", Confidence: 0.95})
	if err != nil {
		t.Fatalf("AttachSentiment() error = %v", err)
	}

	session, _ := store.Get("CA1")
	if session.Turns[0].Sentiment != "angry" {
		t.Errorf("Sentiment = %q, want angry", session.Turns[0].Sentiment)
	}
	if session.Turns[0].Text != "I am angry" {
		t.Errorf("Text changed to %q", session.Turns[0].Text)
	}
	if len(obs.events) != 1 {
		t.Errorf("events = %d, want 1", len(obs.events))
	}

	err = store.AttachSentiment(refFor(store, "CA1", turn), domain.Classification{Label: "positive", Confidence: 0.5})
	if !errors.Is(err, domain.ErrSentimentAlreadySet) {
		t.Errorf("second AttachSentiment() error = %v, want ErrSentimentAlreadySet", err)
	}
	session, _ = store.Get("CA1")
	if session.Turns[0].Sentiment != "angry" {
		t.Errorf("Sentiment overwritten to %q", session.Turns[0].Sentiment)
	}
}

func TestMemoryStore_AttachSentimentRejectsStaleResults(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *Store) domain.TurnRef
		wantErr error
	}{
		{
			name: "session missing",
			setup: func(s *Store) domain.TurnRef {
				return domain.TurnRef{CallID: "nobody", Generation: 1, TurnID: "nobody-0"}
			},
			wantErr: domain.ErrSessionNotFound,
		},
		{
			name: "session terminal",
			setup: func(s *Store) domain.TurnRef {
				s.Create("CA1", time.Now())
				turn, _ := s.AppendTurn("CA1", userTurn("hello"))
				s.SetStatus("CA1", domain.StatusCompleted)
				return refFor(s, "CA1", turn)
			},
			wantErr: domain.ErrSessionTerminal,
		},
		{
			name: "newer user turn",
			setup: func(s *Store) domain.TurnRef {
				s.Create("CA1", time.Now())
				turn, _ := s.AppendTurn("CA1", userTurn("first"))
				s.AppendTurn("CA1", userTurn("second"))
				return refFor(s, "CA1", turn)
			},
			wantErr: domain.ErrTurnSuperseded,
		},
		{
			name: "system turn",
			setup: func(s *Store) domain.TurnRef {
				s.Create("CA1", time.Now())
				turn, _ := s.AppendTurn("CA1", domain.TurnInput{Role: domain.RoleSystem, Text: "hi"})
				return refFor(s, "CA1", turn)
			},
			wantErr: domain.ErrTurnNotFound,
		},
		{
			name: "session re-created",
			setup: func(s *Store) domain.TurnRef {
				s.Create("CA1", time.Now())
				turn, _ := s.AppendTurn("CA1", userTurn("first call"))
				ref := refFor(s, "CA1", turn)
				s.Delete("CA1")
				s.Create("CA1", time.Now())
				s.AppendTurn("CA1", userTurn("second call"))
				return ref
			},
			wantErr: domain.ErrSessionReplaced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			callID := "CA1"
			ref := tt.setup(store)
			before, _ := store.Get(callID)

			err := store.AttachSentiment(ref, domain.Classification{Label: "angry"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AttachSentiment() error = %v, want %v", err, tt.wantErr)
			}

			after, _ := store.Get(callID)
			if len(after.Turns) != len(before.Turns) {
				t.Errorf("turn count changed: %d -> %d", len(before.Turns), len(after.Turns))
			}
			for _, turn := range after.Turns {
				if turn.HasSentiment() {
					t.Errorf("turn %s gained sentiment %q", turn.ID, turn.Sentiment)
				}
			}
		})
	}
}

func TestMemoryStore_ListIsSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	for _, id := range []string{"CA3", "CA1", "CA2"} {
		store.Create(id, time.Now())
	}

	sessions := store.List()
	if len(sessions) != 3 {
		t.Fatalf("List() count = %d, want 3", len(sessions))
	}
	if sessions[0].CallID != "CA3" || sessions[1].CallID != "CA1" || sessions[2].CallID != "CA2" {
		t.Errorf("List() order = %s,%s,%s", sessions[0].CallID, sessions[1].CallID, sessions[2].CallID)
	}

	sessions[0].Status = domain.StatusError
	again, _ := store.Get("CA3")
	if again.Status != domain.StatusInProgress {
		t.Error("mutating a listed session changed the store")
	}
}

func TestMemoryStore_DeleteConversation(t *testing.T) {
	store, obs := newTestStore(t)
	store.Create("CA1", time.Now())
	obs.events = nil

	if !store.Delete("CA1") {
		t.Fatal("Delete() = false, want true")
	}
	if _, ok := store.Get("CA1"); ok {
		t.Error("Get() found deleted session")
	}
	if len(obs.events) != 1 || obs.events[0].kind != domain.EventSessionEnded {
		t.Errorf("events = %+v, want one ended event", obs.events)
	}
	if len(store.List()) != 0 {
		t.Error("List() still contains deleted session")
	}
}

func TestMemoryStore_DeleteMissingIsSilent(t *testing.T) {
	store, obs := newTestStore(t)

	if store.Delete("missing") {
		t.Error("Delete() of missing session = true, want false")
	}
	if len(obs.events) != 0 {
		t.Errorf("events = %d, want 0", len(obs.events))
	}
}
