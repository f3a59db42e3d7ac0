package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/callsense/callsense/internal/classifier/cohere"
	"github.com/callsense/callsense/internal/classifier/keyword"
	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/internal/core/ports"
	"github.com/callsense/callsense/internal/telephony/fake"
	"github.com/callsense/callsense/internal/telephony/twilio"
)

// NewClassifier builds and initializes the classifier named by cfg.Type.
// A nil httpClient gets a traced default transport.
func NewClassifier(cfg config.ClassifierConfig, httpClient *http.Client, logger *slog.Logger) (ports.Classifier, error) {
	switch cfg.Type {
	case config.ClassifierKeyword:
		return keyword.New(), nil
	case config.ClassifierCohere:
		if httpClient == nil {
			httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
		}
		examples := cohere.DefaultExamples
		if len(cfg.Cohere.Examples) > 0 {
			examples = make([]cohere.Example, 0, len(cfg.Cohere.Examples))
			for _, ex := range cfg.Cohere.Examples {
				examples = append(examples, cohere.Example{Text: ex.Text, Label: ex.Label})
			}
		}

		c := cohere.New(cfg.Cohere.APIKey,
			[]cohere.ClientOption{cohere.WithBaseURL(cfg.Cohere.BaseURL), cohere.WithHTTPClient(httpClient)},
			cohere.WithExamples(examples),
			cohere.WithLogger(logger.With(slog.String("component", "classifier"))),
		)
		if err := c.Initialize(cfg.Cohere.ModelID); err != nil {
			return nil, fmt.Errorf("initialize classifier: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown classifier type %q", cfg.Type)
	}
}

// NewTerminator builds the call terminator named by cfg.Type.
func NewTerminator(cfg config.TelephonyConfig, logger *slog.Logger) (ports.CallTerminator, error) {
	logger = logger.With(slog.String("component", "telephony"))
	switch cfg.Type {
	case config.TelephonyFake:
		return fake.NewTerminator(logger), nil
	case config.TelephonyTwilio:
		gw, err := twilio.NewGateway(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, logger)
		if err != nil {
			return nil, fmt.Errorf("create twilio gateway: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unknown telephony type %q", cfg.Type)
	}
}
