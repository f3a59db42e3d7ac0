package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/callsense/callsense/internal/core/ports"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		a.logger = logger
		return nil
	}
}

// WithClassifier replaces the classifier selected by configuration.
func WithClassifier(c ports.Classifier) Option {
	return func(a *App) error {
		a.classifier = c
		return nil
	}
}

// WithTerminator replaces the call terminator selected by configuration.
func WithTerminator(t ports.CallTerminator) Option {
	return func(a *App) error {
		a.terminator = t
		return nil
	}
}

// WithHTTPClient sets the client used for outbound classification requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) error {
		a.httpClient = c
		return nil
	}
}

// WithClock sets the time source for session and turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *App) error {
		a.now = now
		return nil
	}
}
