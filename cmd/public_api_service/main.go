package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/aradsms/textsms/internal/platform/config"
	"github.com/aradsms/textsms/internal/platform/database"
	"github.com/aradsms/textsms/internal/platform/events"
	"github.com/aradsms/textsms/internal/platform/logger"
	"github.com/aradsms/textsms/internal/platform/messagebroker"
	"github.com/aradsms/textsms/internal/public_api_service/middleware"
	httptransport "github.com/aradsms/textsms/internal/public_api_service/transport/http"
	"github.com/aradsms/textsms/internal/sms_sending_service/adapters/eventbridge"
	"github.com/aradsms/textsms/internal/sms_sending_service/repository/postgres"
	"github.com/aradsms/textsms/internal/sms_sending_service/wiring"
)

const (
	serviceName     = "public-api-service"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load("./configs", "config.defaults")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Public API service starting...", "port", cfg.PublicAPIServicePort)
	if cfg.QueueConnection == "memory" {
		log.Error("The memory queue connection only lives inside one process; the API needs nats or kafka", "queue_connection", cfg.QueueConnection)
		os.Exit(1)
	}

	mainCtx, mainCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer mainCancel()

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("Failed to connect to PostgreSQL database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	jobRepo := postgres.NewPgScheduledJobRepository(dbPool, log)

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, log)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	bus := events.NewBus()
	eventbridge.New(natsClient, "", log).Register(bus)

	queue := wiring.NewQueueManager(cfg, natsClient, jobRepo, log)
	defer queue.Close()
	registry := wiring.NewRegistry(cfg, bus, queue, log)

	validate := validator.New(validator.WithRequiredStructEnabled())
	auth := middleware.NewAuthenticator(cfg.JWTAccessSecret, cfg.APIKeys(), log)
	routes := httptransport.QueueRoutes{Connection: cfg.QueueConnection, Queues: cfg.Queues()}
	messageHandler := httptransport.NewMessageHandler(registry, routes, validate, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(httptransport.PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(auth.Middleware)
		v1.Use(middleware.RequireScope(middleware.ScopeSend, log))
		messageHandler.RegisterRoutes(v1)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.PublicAPIServicePort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)
	g.Go(func() error {
		log.Info("HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Public API service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Public API service shut down successfully.")
}
