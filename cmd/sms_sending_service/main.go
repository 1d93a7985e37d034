package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/aradsms/textsms/internal/platform/config"
	"github.com/aradsms/textsms/internal/platform/database"
	"github.com/aradsms/textsms/internal/platform/events"
	"github.com/aradsms/textsms/internal/platform/logger"
	"github.com/aradsms/textsms/internal/platform/messagebroker"
	"github.com/aradsms/textsms/internal/sms_sending_service/adapters/eventbridge"
	"github.com/aradsms/textsms/internal/sms_sending_service/adapters/jobqueue"
	"github.com/aradsms/textsms/internal/sms_sending_service/app"
	"github.com/aradsms/textsms/internal/sms_sending_service/repository/postgres"
	"github.com/aradsms/textsms/internal/sms_sending_service/wiring"
)

const (
	serviceName     = "sms-sending-service"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load("./configs", "config.defaults")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("SMS Sending Service starting...", "log_level", cfg.LogLevel, "queue_connection", cfg.QueueConnection)

	mainCtx, mainCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer mainCancel()

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("Failed to connect to PostgreSQL database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	jobRepo := postgres.NewPgScheduledJobRepository(dbPool, log)
	if err := jobRepo.EnsureSchema(mainCtx); err != nil {
		log.Error("Failed to prepare scheduled_jobs table", "error", err)
		os.Exit(1)
	}

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, log)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	bus := events.NewBus()
	eventbridge.New(natsClient, "", log).Register(bus)

	queue := wiring.NewQueueManager(cfg, natsClient, jobRepo, log)
	defer func() {
		if err := queue.Close(); err != nil {
			log.Warn("Failed to close job queue connections", "error", err)
		}
	}()

	registry := wiring.NewRegistry(cfg, bus, queue, log)
	worker := app.NewWorker(registry, app.NewKinds(), queue, log, app.WorkerConfig{DefaultTries: cfg.SchedulerMaxRetry + 1})
	poller := jobqueue.NewPoller(jobRepo, queue, log, jobqueue.PollerConfig{
		PollingInterval: cfg.SchedulerPollingInterval,
		JobBatchSize:    cfg.SchedulerJobBatchSize,
		MaxRetry:        cfg.SchedulerMaxRetry,
	})

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	for _, name := range cfg.Queues() {
		name := name
		g.Go(func() error {
			log.Info("Consuming SMS jobs", "connection", cfg.QueueConnection, "queue", name)
			return queue.Consume(groupCtx, "", name, worker.Process)
		})
	}

	g.Go(func() error {
		log.Info("Starting scheduled job poller", "polling_interval", cfg.SchedulerPollingInterval)
		return poller.Run(groupCtx)
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.GRPCHealthPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen grpc health on %s: %w", addr, err)
		}
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		log.Info("gRPC health server listening", "address", addr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info("Metrics server listening", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Initiating graceful shutdown...")
		healthServer.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("SMS Sending Service shut down successfully.")
}
