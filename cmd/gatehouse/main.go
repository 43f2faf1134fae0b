package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsforge/gatehouse/pkg/api"
	"github.com/opsforge/gatehouse/pkg/config"
	"github.com/opsforge/gatehouse/pkg/creds"
	"github.com/opsforge/gatehouse/pkg/observability"
	"github.com/opsforge/gatehouse/pkg/session"
)

func main() {
	cfg, err := config.LoadGatehouse()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics("gatehouse", registry)

	credStore, err := creds.Open(cfg.Creds.Driver, cfg.Creds.DSN)
	if err != nil {
		log.Fatalf("Failed to open credential store: %v", err)
	}
	logger.WithField("driver", cfg.Creds.Driver).Info("credential store ready")

	sessionStore, err := session.NewRedisStore(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to session store: %v", err)
	}
	logger.Info("session store ready")

	health := observability.NewHealthChecker(credStore.DB(), sessionStore.Client())

	server := api.NewServer(api.Options{
		Creds:        credStore,
		Sessions:     sessionStore,
		Metrics:      metrics,
		Logger:       logger,
		Health:       health,
		Registry:     registry,
		SessionTTL:   cfg.SessionTTL,
		CRMURL:       cfg.CRMBaseURL,
		SecureCookie: cfg.SecureCookie,
	})

	// The monitor runs for the lifetime of the process and is stopped
	// through its context during shutdown.
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitor := session.NewMonitor(sessionStore, metrics.ActiveSessions, cfg.MonitorInterval, logger)
	go monitor.Run(monitorCtx)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopMonitor()
		select {
		case <-monitor.Done():
			return nil
		case <-ctx.Done():
			return fmt.Errorf("session monitor did not stop in time")
		}
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return sessionStore.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return credStore.Close()
	})

	go func() {
		logger.Infof("Gatehouse authority listening on %s", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}
