// Package cohere classifies utterance sentiment with the Cohere classify API.
package cohere

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/callsense/callsense/internal/core/domain"
)

var errMissingAPIKey = errors.New("cohere API key is not set")

// DefaultExamples are few-shot examples covering each sentiment label.
var DefaultExamples = []Example{
	{Text: "This is absolutely terrible service. I've been waiting for hours!", Label: "angry"},
	{Text: "I can't believe how incompetent your company is. This is ridiculous!", Label: "angry"},
	{Text: "I need to check my account balance please.", Label: "neutral"},
	{Text: "Can you tell me when my next payment is due?", Label: "neutral"},
	{Text: "Thank you so much for your help! You've made my day.", Label: "positive"},
	{Text: "I really appreciate how quickly you resolved my issue.", Label: "positive"},
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithExamples sets the few-shot examples sent with each request.
func WithExamples(examples []Example) Option {
	return func(c *Classifier) {
		c.examples = examples
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// Classifier adapts the classify endpoint to the sentiment contract. It is
// safe for concurrent use; the model id is the only state and is fixed by
// Initialize.
type Classifier struct {
	client   *Client
	apiKey   string
	examples []Example
	logger   *slog.Logger
	modelID  atomic.Pointer[string]
}

// New creates an uninitialized classifier. Analyze fails until Initialize
// has been called with a model id.
func New(apiKey string, clientOpts []ClientOption, opts ...Option) *Classifier {
	c := &Classifier{
		client: NewClient(apiKey, clientOpts...),
		apiKey: apiKey,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize selects the classification model.
func (c *Classifier) Initialize(modelID string) error {
	if c.apiKey == "" {
		return errMissingAPIKey
	}
	if modelID == "" {
		return errors.New("cohere model id is not set")
	}
	c.modelID.Store(&modelID)
	c.logger.Info("classifier initialized", slog.String("model_id", modelID))
	return nil
}

// Ready reports whether Initialize succeeded.
func (c *Classifier) Ready() bool {
	return c.modelID.Load() != nil
}

// Analyze classifies text. Failures come back as the unknown sentinel.
func (c *Classifier) Analyze(ctx context.Context, text string) domain.Classification {
	modelID := c.modelID.Load()
	if modelID == nil {
		return domain.UnknownClassification(domain.ErrClassifierNotInitialized)
	}

	resp, err := c.client.Classify(ctx, &ClassifyRequest{
		Inputs:   []string{text},
		Model:    *modelID,
		Examples: c.examples,
	})
	if err != nil {
		c.logger.Error("classification request failed", slog.String("error", err.Error()))
		return domain.UnknownClassification(fmt.Errorf("error during classification: %w", err))
	}
	if len(resp.Classifications) == 0 {
		return domain.UnknownClassification(domain.ErrNoClassification)
	}

	result := resp.Classifications[0]
	if result.Prediction == "" {
		return domain.UnknownClassification(domain.ErrNoClassification)
	}
	return domain.Classification{
		Label:      result.Prediction,
		Confidence: result.Confidence,
	}
}
