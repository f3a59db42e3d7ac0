package orchestrator

import (
	"time"
)

// Prompts are the texts spoken to the caller.
type Prompts struct {
	Greeting        string
	Repeat          string
	Acknowledgement string
	Farewell        string
	Apology         string
}

// DefaultPrompts returns the stock prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		Greeting:        "Welcome to Call Sense. How can I help you today?",
		Repeat:          "I didn't catch that.",
		Acknowledgement: "I heard you. Let me process that. Is there anything else I can help you with?",
		Farewell:        "Thank you for your time. Goodbye!",
		Apology:         "We encountered an error. Please try your call again later.",
	}
}

// DefaultTerminationPhrases end the call when spoken on their own.
var DefaultTerminationPhrases = []string{"no", "goodbye", "bye"}

// DefaultClassifyTimeout bounds a single classification attempt.
const DefaultClassifyTimeout = 5 * time.Second

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPrompts overrides the spoken prompts. Empty fields keep their defaults.
func WithPrompts(p Prompts) Option {
	return func(o *Orchestrator) {
		if p.Greeting != "" {
			o.prompts.Greeting = p.Greeting
		}
		if p.Repeat != "" {
			o.prompts.Repeat = p.Repeat
		}
		if p.Acknowledgement != "" {
			o.prompts.Acknowledgement = p.Acknowledgement
		}
		if p.Farewell != "" {
			o.prompts.Farewell = p.Farewell
		}
		if p.Apology != "" {
			o.prompts.Apology = p.Apology
		}
	}
}

// WithTerminationPhrases replaces the termination vocabulary.
func WithTerminationPhrases(phrases []string) Option {
	return func(o *Orchestrator) {
		if len(phrases) == 0 {
			return
		}
		o.phrases = make(map[string]struct{}, len(phrases))
		for _, p := range phrases {
			o.phrases[normalizePhrase(p)] = struct{}{}
		}
	}
}

// WithClassifyTimeout sets the per-attempt classification timeout.
func WithClassifyTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.classifyTimeout = d
		}
	}
}

// WithClock overrides the clock used to stamp turns.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}
