// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"

	"lttng_iostate/internal/config"
	"lttng_iostate/internal/logger"
)

var (
	version = "0.1.0"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	if cfg == nil {
		return // example config generated
	}

	if err := logger.ConfigureLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure loggers: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", version).
		Str("trace", cfg.Analysis.TracePath).
		Str("map_backend", cfg.Analysis.MapBackend).
		Bool("serve", cfg.Server.Enabled).
		Msg("Starting lttng_iostate")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newAnalysis(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up the analysis")
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		srv = startServer(cfg, a)
	}

	stats, runErr := a.run(ctx)
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		log.Warn().Msg("Analysis interrupted, state is partial")
	default:
		log.Error().Err(runErr).Msg("Analysis pass failed")
	}
	a.provider.LogHandlerCounts()
	a.hub.PublishStatus("pass complete")

	if cfg.Analysis.PrintSummary {
		if err := printSummary(os.Stdout, a.store, stats, a.reader.BytesRead()); err != nil {
			log.Error().Err(err).Msg("Failed to print summary")
		}
	}

	if srv != nil {
		if ctx.Err() == nil {
			log.Info().Str("address", cfg.Server.ListenAddress).Msg("Pass finished, still serving until interrupted")
			<-ctx.Done()
		}
		shutdownServer(srv, a)
	}

	a.store.Dispose()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
	log.Info().Msg("lttng_iostate stopped")
}

func shutdownServer(srv *http.Server, a *analysis) {
	log.Info().Msg("Shutting down HTTP server...")
	a.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	} else {
		log.Debug().Msg("HTTP server shut down cleanly")
	}
}
