package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Cyclone1070/gatekeep/internal/policy/command"
	"github.com/spf13/cobra"
)

// shutdownGrace bounds how long serve waits for processes to exit.
const shutdownGrace = 10 * time.Second

func serveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve operation requests as JSON lines on stdin/stdout",
		Long: `Read one JSON operation request per line from stdin and write one JSON
response per line to stdout. Requests run concurrently; match responses
to requests by requestId. Logs go to stderr or the configured log file.

Example request:
  {"kind":"readFile","requestId":"1","payload":{"path":"README.md"}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.cfg.Policy.RulesFile != "" && a.cfg.Policy.WatchRules {
				w := command.NewWatcher(underRoot(a.root, a.cfg.Policy.RulesFile), a.commands, a.logger)
				if err := w.Start(ctx); err != nil {
					a.logger.Warn().Err(err).Msg("command rules will not be reloaded")
				} else {
					defer w.Stop()
				}
			}

			a.logger.Info().Str("root", a.root).Int("maxConcurrentRequests", a.cfg.Server.MaxConcurrentRequests).Msg("serving on stdio")

			served := make(chan error, 1)
			go func() {
				served <- a.dispatcher.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			}()

			var serveErr error
			select {
			case serveErr = <-served:
			case <-ctx.Done():
				a.logger.Info().Msg("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := a.Shutdown(shutdownCtx); err != nil && serveErr == nil {
				serveErr = err
			}
			return serveErr
		},
	}
}
