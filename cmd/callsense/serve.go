package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/callsense/callsense/internal/app"
	"github.com/callsense/callsense/internal/telemetry"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the voice webhooks, REST API and live update stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}

			logger := newLogger(cfg.Log, os.Stdout)
			slog.SetDefault(logger)

			if cfg.Telemetry.Enabled {
				shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, logger)
				if err != nil {
					return errors.Wrap(err, "initialize tracer")
				}
				defer func() {
					if err := shutdown(context.Background()); err != nil {
						logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
					}
				}()
			}

			a, err := app.New(cfg, app.WithLogger(logger))
			if err != nil {
				return errors.Wrap(err, "create app")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(a.Start)
			eg.Go(func() error {
				<-ctx.Done()
				logger.Info("shutdown signal received")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server.ShutdownTimeout))
				defer cancel()
				return a.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 15 * time.Second
	}
	return d
}
