// Package keyword is a deterministic sentiment classifier used in tests and
// offline development. It needs no credentials and is always ready.
package keyword

import (
	"context"
	"strings"

	"github.com/callsense/callsense/internal/core/domain"
)

var (
	angryWords = []string{
		"angry", "terrible", "awful", "ridiculous", "incompetent", "furious",
		"hate", "worst", "unacceptable", "waiting for hours",
	}
	positiveWords = []string{
		"thank", "thanks", "great", "appreciate", "love", "excellent",
		"wonderful", "happy", "made my day",
	}
)

const (
	matchConfidence   = 0.95
	neutralConfidence = 0.6
)

// Classifier labels text by keyword lookup.
type Classifier struct{}

// New returns a keyword classifier.
func New() *Classifier {
	return &Classifier{}
}

// Ready always reports true.
func (c *Classifier) Ready() bool { return true }

// Analyze returns angry, positive or neutral. A canceled context yields the
// unknown sentinel like any other adapter failure.
func (c *Classifier) Analyze(ctx context.Context, text string) domain.Classification {
	if err := ctx.Err(); err != nil {
		return domain.UnknownClassification(err)
	}

	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, angryWords):
		return domain.Classification{Label: "angry", Confidence: matchConfidence}
	case containsAny(lower, positiveWords):
		return domain.Classification{Label: "positive", Confidence: matchConfidence}
	default:
		return domain.Classification{Label: "neutral", Confidence: neutralConfidence}
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
