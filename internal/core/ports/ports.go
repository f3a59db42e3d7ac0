// Package ports defines the capability interfaces the conversation core
// depends on. Live and fake implementations are selected by configuration.
package ports

import (
	"context"

	"github.com/callsense/callsense/internal/core/domain"
)

// Classifier derives a sentiment label from an utterance.
// Implementations: Cohere classify API (default), keyword matcher (fake).
type Classifier interface {
	// Analyze never fails past its boundary: every failure is converted
	// into a domain.LabelUnknown result carrying the error.
	Analyze(ctx context.Context, text string) domain.Classification
	// Ready reports whether Analyze can produce real labels.
	Ready() bool
}

// CallTerminator issues call control commands to the telephony gateway.
// Implementations: Twilio REST (default), in-memory fake.
type CallTerminator interface {
	// EndCall requests the call be ended. Ending an already ended call is
	// not an error.
	EndCall(ctx context.Context, callID string) error
}

// SessionObserver receives every store mutation in mutation order.
// Calls are made while the store is locked and must not block.
type SessionObserver interface {
	SessionChanged(session domain.Session)
	SessionEnded(session domain.Session)
}
