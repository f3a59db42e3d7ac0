package domain

import "encoding/json"

// EventType identifies a message on the live update channel.
type EventType string

const (
	// EventSnapshot carries every current session; sent once on subscribe.
	EventSnapshot EventType = "snapshot"
	// EventSessionChanged carries the full current state of one session.
	EventSessionChanged EventType = "conversationUpdated"
	// EventSessionEnded carries the final state of one session.
	EventSessionEnded EventType = "conversationEnded"
)

// Event is one message delivered to a live subscriber.
type Event struct {
	Type     EventType `json:"type"`
	Session  *Session  `json:"session,omitempty"`
	Sessions []Session `json:"sessions,omitempty"`
}

// MarshalJSON emits only the payload field matching the event type, so a
// snapshot of zero sessions still carries an empty "sessions" array.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventSnapshot {
		sessions := e.Sessions
		if sessions == nil {
			sessions = []Session{}
		}
		return json.Marshal(struct {
			Type     EventType `json:"type"`
			Sessions []Session `json:"sessions"`
		}{e.Type, sessions})
	}
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Session *Session  `json:"session"`
	}{e.Type, e.Session})
}
