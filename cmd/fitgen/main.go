// Command fitgen serves the quota-gated generation API.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/fitgen/pkg/config"
	zlog "github.com/mihaimyh/fitgen/pkg/quota/logger/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	zl := newZerolog(cfg.App)
	logger := zlog.NewLogger(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		zl.Fatal().Err(err).Msg("failed to wire service")
	}
	defer app.close()

	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.App.Port),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zl.Info().
			Str("addr", server.Addr).
			Str("env", cfg.App.Env).
			Str("backend", cfg.Quota.Backend).
			Str("auth_mode", cfg.Auth.Mode).
			Msg("starting fitgen server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error().Err(err).Msg("server stopped unexpectedly")
		}
	case <-ctx.Done():
		zl.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newZerolog(app config.AppConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(app.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if strings.EqualFold(app.LogFormat, "console") {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		base = zerolog.New(os.Stdout)
	}
	return base.Level(level).With().Timestamp().Str("service", "fitgen").Logger()
}
