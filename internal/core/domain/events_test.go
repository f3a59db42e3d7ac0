package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEvent_MarshalJSON(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	session := Session{CallID: "CA1", Status: StatusInProgress, StartTime: start, Turns: []Turn{}}

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "empty snapshot keeps array",
			ev:   Event{Type: EventSnapshot},
			want: `{"type":"snapshot","sessions":[]}`,
		},
		{
			name: "snapshot",
			ev:   Event{Type: EventSnapshot, Sessions: []Session{session}},
			want: `{"type":"snapshot","sessions":[{"callSid":"CA1","status":"in-progress","startTime":"2024-05-01T12:00:00Z","turns":[]}]}`,
		},
		{
			name: "changed",
			ev:   Event{Type: EventSessionChanged, Session: &session},
			want: `{"type":"conversationUpdated","session":{"callSid":"CA1","status":"in-progress","startTime":"2024-05-01T12:00:00Z","turns":[]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTurn_SentimentOmittedUntilSet(t *testing.T) {
	turn := Turn{ID: "CA1-1", Role: RoleUser, Text: "hi"}
	b, err := json.Marshal(turn)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(b), "sentiment") {
		t.Errorf("unset sentiment serialized: %s", b)
	}

	turn.Sentiment, turn.Confidence = "angry", 0.95
	b, _ = json.Marshal(turn)
	if !strings.Contains(string(b), `"sentiment":"angry"`) || !strings.Contains(string(b), `"confidence":0.95`) {
		t.Errorf("sentiment missing: %s", b)
	}
}

func TestTurn_ZeroConfidenceKeptWithSentiment(t *testing.T) {
	turn := Turn{ID: "CA1-1", Role: RoleUser, Text: "fine", Sentiment: "neutral"}
	b, err := json.Marshal(turn)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(b), `"confidence":0`) {
		t.Errorf("zero confidence dropped: %s", b)
	}

	var back Turn
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Sentiment != "neutral" || back.Confidence != 0 {
		t.Errorf("round trip = %+v", back)
	}
}

func TestSession_CloneCopiesEndTime(t *testing.T) {
	end := time.Now()
	s := Session{CallID: "CA1", Status: StatusCompleted, EndTime: &end, Turns: []Turn{{ID: "CA1-0", Text: "hello"}}}

	c := s.Clone()
	c.Turns[0].Text = "changed"
	*c.EndTime = end.Add(time.Hour)

	if s.Turns[0].Text != "hello" {
		t.Error("Clone shares turns with the original")
	}
	if !s.EndTime.Equal(end) {
		t.Error("Clone shares end time with the original")
	}
}

func TestSession_LastUserTurn(t *testing.T) {
	s := Session{Turns: []Turn{{Role: RoleSystem}, {Role: RoleUser}, {Role: RoleSystem}}}
	if got := s.LastUserTurn(); got != 1 {
		t.Errorf("LastUserTurn() = %d, want 1", got)
	}
	if got := (&Session{}).LastUserTurn(); got != -1 {
		t.Errorf("LastUserTurn() on empty = %d, want -1", got)
	}
}
