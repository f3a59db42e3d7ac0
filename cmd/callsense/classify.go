package main

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/callsense/callsense/internal/app"
)

type classifyOutput struct {
	Text       string  `json:"text"`
	Label      string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

func newClassifyCmd(flags *rootFlags) *cobra.Command {
	var classifierType string

	cmd := &cobra.Command{
		Use:   "classify <text>...",
		Short: "Classify the sentiment of each argument and print the results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if classifierType != "" {
				cfg.Classifier.Type = classifierType
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			classifier, err := app.NewClassifier(cfg.Classifier, nil, logger)
			if err != nil {
				return errors.Wrap(err, "create classifier")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, text := range args {
				text = strings.TrimSpace(text)
				ctx, cancel := context.WithTimeout(cmd.Context(), timeoutOrDefault(cfg.Classifier.Timeout))
				result := classifier.Analyze(ctx, text)
				cancel()

				if err := enc.Encode(classifyOutput{
					Text:       text,
					Label:      result.Label,
					Confidence: result.Confidence,
					Error:      result.Error,
				}); err != nil {
					return errors.Wrap(err, "write result")
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&classifierType, "classifier", "", "override classifier.type (cohere, keyword)")
	return cmd
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}
