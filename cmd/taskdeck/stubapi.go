package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dori/taskdeck/internal/logging"
	"github.com/dori/taskdeck/internal/stubapi"
)

func stubAPICmd() *cobra.Command {
	var (
		addr       string
		secret     string
		autoVerify bool
		tokenTTL   time.Duration
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:   "stub-api",
		Short: "Run an in-memory task API for local use",
		Long: `Run an in-memory task API on the same routes the client talks to.
Verification and reset tokens are written to the log instead of being emailed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := logging.DefaultOptions()
			opts.Prefix = "stub-api"
			opts.Formatter = "text"
			opts.Level = logLevel
			logger := logging.New(os.Stderr, opts)

			srv := stubapi.New(stubapi.Options{
				Secret:     secret,
				TokenTTL:   tokenTTL,
				AutoVerify: autoVerify,
				Logger:     logger,
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() { errc <- srv.Start(addr) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-errc
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":5000", "Listen address")
	cmd.Flags().StringVar(&secret, "secret", "", "Token signing secret (random when empty)")
	cmd.Flags().BoolVar(&autoVerify, "auto-verify", false, "Mark new accounts verified")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", time.Hour, "Session token lifetime")
	cmd.Flags().StringVar(&logLevel, "stub-log-level", "info", "Log level of the stub server")
	return cmd
}
