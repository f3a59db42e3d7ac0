package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/callsense/callsense/internal/app"
)

func newHangupCmd(flags *rootFlags) *cobra.Command {
	var telephonyType string

	cmd := &cobra.Command{
		Use:   "hangup <call-sid>",
		Short: "Ask the telephony gateway to end a call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if telephonyType != "" {
				cfg.Telephony.Type = telephonyType
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			terminator, err := app.NewTerminator(cfg.Telephony, logger)
			if err != nil {
				return errors.Wrap(err, "create terminator")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutOrDefault(cfg.Server.RequestTimeout))
			defer cancel()
			if err := terminator.EndCall(ctx, args[0]); err != nil {
				return errors.Wrapf(err, "end call %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "call %s ended\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&telephonyType, "telephony", "", "override telephony.type (twilio, fake)")
	return cmd
}
