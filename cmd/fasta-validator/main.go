package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dusted-go/logging/prettylog"
	"github.com/urfave/cli/v2"

	"github.com/tionis/fasta-validator/internal/callback"
	"github.com/tionis/fasta-validator/internal/config"
	"github.com/tionis/fasta-validator/internal/fetch"
	"github.com/tionis/fasta-validator/internal/httpserver"
	"github.com/tionis/fasta-validator/internal/metrics"
	"github.com/tionis/fasta-validator/internal/validator"
)

func main() {
	app := &cli.App{
		Name:  "fasta-validator",
		Usage: "Aruna hook that labels objects containing FASTA data",
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "start the validation server",
				Action: func(c *cli.Context) error {
					return serve(c.Context)
				},
			},
			{
				Name:      "check",
				Aliases:   []string{"c"},
				Usage:     "classify local files, use - for stdin",
				ArgsUsage: "FILE...",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("at least one file is required", 2)
					}
					allFasta, err := runCheck(c.App.Writer, os.Stdin, c.Args().Slice())
					if err != nil {
						return cli.Exit(err.Error(), 2)
					}
					if !allFasta {
						return cli.Exit("", 1)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := validator.New(
		logger,
		fetch.NewClient(logger, cfg.FetchTimeout, cfg.MaxDownloadBytes),
		callback.NewClient(logger, cfg.ArunaAddress, cfg.CallbackTimeout),
	)

	api := httpserver.New(cfg, logger, svc, metrics.NewMetrics())
	httpSrv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fasta validator starting", "addr", cfg.ServerAddress, "hook_id", cfg.HookID)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("http server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	logger.Info("fasta validator stopped")
	return serveErr
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "pretty") {
		return slog.New(prettylog.New(opts,
			prettylog.WithDestinationWriter(w),
			prettylog.WithColor(),
			prettylog.WithOutputEmptyAttrs(),
		))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
