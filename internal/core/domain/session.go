// Package domain holds the conversation model shared by the store, the
// orchestrator and the live update channel.
package domain

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a call session.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// IsTerminal reports whether no further mutation is accepted in this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Session is the tracked state of one phone call.
type Session struct {
	CallID    string     `json:"callSid"`
	Status    Status     `json:"status"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Turns     []Turn     `json:"turns"`
	// Generation tells apart sessions re-created under the same call id.
	Generation uint64 `json:"-"`
}

// Turn is one recorded utterance within a session.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	// Sentiment is filled in after the turn is recorded, user turns only.
	Sentiment  string  `json:"sentiment,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// MarshalJSON writes confidence whenever a sentiment is set, including a
// confidence of zero.
func (t Turn) MarshalJSON() ([]byte, error) {
	type plain Turn
	out := struct {
		plain
		Confidence *float64 `json:"confidence,omitempty"`
	}{plain: plain(t)}
	if t.HasSentiment() {
		c := t.Confidence
		out.Confidence = &c
	}
	return json.Marshal(out)
}

// HasSentiment reports whether a classification has been attached.
func (t Turn) HasSentiment() bool {
	return t.Sentiment != ""
}

// TurnRef identifies a turn within one incarnation of a session.
type TurnRef struct {
	CallID     string
	Generation uint64
	TurnID     string
}

// TurnInput is the caller-supplied part of a turn; the store assigns the id.
type TurnInput struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Clone returns a deep copy that shares no memory with s.
func (s *Session) Clone() Session {
	out := Session{
		CallID:    s.CallID,
		Status:    s.Status,
		StartTime: s.StartTime,
		Turns:     make([]Turn, len(s.Turns)),

		Generation: s.Generation,
	}
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	copy(out.Turns, s.Turns)
	return out
}

// LastUserTurn returns the index of the most recent user turn, or -1.
func (s *Session) LastUserTurn() int {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
