// Package main is the entry point for the reigate gateway.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/howard-nolan/reigate/internal/config"
	"github.com/howard-nolan/reigate/internal/logging"
	"github.com/howard-nolan/reigate/internal/metrics"
	"github.com/howard-nolan/reigate/internal/server"
	"github.com/howard-nolan/reigate/internal/units"
	"github.com/howard-nolan/reigate/internal/upstream"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Log)
	logger.Info("starting reigate")

	// Build the unit registry from the environment, once. It stays
	// immutable for the process lifetime — adding a unit means restarting
	// with a new REI_AGENT_SECRET_* variable.
	registry := units.FromEnviron(os.Environ())

	if registry.Len() == 0 {
		// Degraded but running: every chat call will 404 until units are
		// configured, but /health and /units still serve.
		logger.Error("no REI agent secrets found; registry is empty",
			"expected_prefix", units.EnvPrefix)
	} else {
		logger.Info("loaded REI units",
			"count", registry.Len(),
			"units", registry.Names(),
		)
	}

	m := metrics.New(prometheus.NewRegistry())

	// The client timeout is the gateway's only deadline on upstream calls.
	// It is deliberately generous (default 50 minutes): completions can
	// legitimately run that long, and callers wait rather than get cut off.
	httpClient := &http.Client{Timeout: cfg.Upstream.Timeout}

	rei := upstream.NewClient(cfg.Upstream.BaseURL, httpClient, logger, m)
	srv := server.New(cfg, registry, rei, m, logger)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     srv,
		ReadTimeout: cfg.Server.ReadTimeout,

		// WriteTimeout comes from config and defaults to zero (disabled):
		// it would otherwise have to outlast the upstream timeout.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("reigate listening", "port", cfg.Server.Port)

	if err := httpServer.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
