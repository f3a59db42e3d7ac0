// Package fake provides an in-memory call terminator for development and tests.
package fake

import (
	"context"
	"log/slog"
	"sync"
)

// Terminator records ended calls instead of contacting a gateway.
type Terminator struct {
	mu     sync.Mutex
	ended  map[string]int
	err    error
	logger *slog.Logger
}

// NewTerminator creates a terminator that accepts every request.
func NewTerminator(logger *slog.Logger) *Terminator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminator{ended: make(map[string]int), logger: logger}
}

// FailWith makes subsequent EndCall requests return err. Pass nil to reset.
func (t *Terminator) FailWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// EndCall records the request. Repeated requests for the same call succeed.
func (t *Terminator) EndCall(ctx context.Context, callID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.ended[callID]++
	t.logger.Info("fake call end", slog.String("call_id", callID), slog.Int("requests", t.ended[callID]))
	return nil
}

// Ended reports how many times EndCall succeeded for callID.
func (t *Terminator) Ended(callID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended[callID]
}
