package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/server"
)

type serveOptions struct {
	port           string
	allowedOrigins []string
	logLevel       string
	logFormat      string
	logFile        string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Long: `Run the chat server. Configuration comes from the environment
(SERVER_PORT, ALLOWED_ORIGINS, MAX_MESSAGE_SIZE, LOG_LEVEL, ...); flags
override it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.NewConfigFromEnv()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, opts, cfg)
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&opts.port, "port", "", "listen address, e.g. :8080")
	cmd.Flags().StringSliceVar(&opts.allowedOrigins, "allowed-origins", nil, "allowed WebSocket origins, * for any")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", "", "json or text")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "also write logs to this rotated file")

	return cmd
}

// applyServeFlags copies explicitly set flags over the environment config.
func applyServeFlags(cmd *cobra.Command, opts *serveOptions, cfg *server.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("allowed-origins") {
		cfg.AllowedOrigins = opts.allowedOrigins
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if flags.Changed("log-file") {
		cfg.LogFile = opts.logFile
	}
}

func runServe(ctx context.Context, cfg *server.Config) error {
	closer := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(*cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		if serveErr != nil {
			slog.Error("server error", "error", serveErr)
		}
	case <-ctx.Done():
		slog.Info("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		if serveErr == nil {
			serveErr = fmt.Errorf("shutdown: %w", err)
		}
	}

	slog.Info("shutdown complete")
	return serveErr
}
