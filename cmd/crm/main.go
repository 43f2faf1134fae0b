package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsforge/gatehouse/pkg/authclient"
	"github.com/opsforge/gatehouse/pkg/config"
	"github.com/opsforge/gatehouse/pkg/crm"
	"github.com/opsforge/gatehouse/pkg/observability"
	"github.com/opsforge/gatehouse/pkg/orders"
)

func main() {
	cfg, err := config.LoadCRM()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics("crm", registry)

	var orderStore orders.Store
	var closeOrders func(context.Context) error

	switch cfg.Orders.Backend {
	case "mongo":
		mongoStore, err := orders.NewMongoStore(context.Background(), cfg.Orders.MongoURI, cfg.Orders.MongoDatabase)
		if err != nil {
			log.Fatalf("Failed to connect to order store: %v", err)
		}
		orderStore = mongoStore
		closeOrders = mongoStore.Close
		logger.Info("mongo order store ready")
	case "memory":
		orderStore = orders.NewMemoryStore()
		logger.Info("in-memory order store ready")
	default:
		log.Fatalf("Unknown orders backend: %s", cfg.Orders.Backend)
	}

	auth := authclient.New(cfg.AuthServiceURL, cfg.ValidateTimeout, logger)
	health := observability.NewHealthChecker(nil, nil)

	server := crm.NewServer(crm.Options{
		Orders:   orderStore,
		Auth:     auth,
		Metrics:  metrics,
		Logger:   logger,
		Health:   health,
		Registry: registry,
		LoginURL: cfg.AuthLoginURL,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	if closeOrders != nil {
		shutdown.RegisterShutdownFunc(closeOrders)
	}

	go func() {
		logger.Infof("CRM service listening on %s", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
}
