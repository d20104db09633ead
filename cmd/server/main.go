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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/stock-allocation/internal/adapter/handler"
	"github.com/rl1809/stock-allocation/internal/adapter/messaging"
	"github.com/rl1809/stock-allocation/internal/adapter/metrics"
	"github.com/rl1809/stock-allocation/internal/adapter/storage"
	"github.com/rl1809/stock-allocation/internal/config"
	"github.com/rl1809/stock-allocation/internal/core/service"
	"github.com/rl1809/stock-allocation/internal/port"
	"github.com/rl1809/stock-allocation/pkg/logger"
	"github.com/rl1809/stock-allocation/pkg/tracing"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.ServiceName, cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)

	if err := run(cfg); err != nil {
		logger.Logger.Fatal().Err(err).Msg("server stopped with error")
	}
	logger.Logger.Info().Msg("server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing
	tp, err := tracing.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error().Err(err).Msg("failed to flush traces")
		}
	}()

	// Initialize storage and cache
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	// Initialize metrics
	recorder, err := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// Initialize movement publisher
	var publisher port.MovementPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing movements to kafka")
	}

	// Initialize service
	inventoryService := service.NewInventoryService(
		storage.NewTracingInventoryRepository(b.repo),
		b.cache,
		b.journal,
		cfg.QueueSize,
		service.WithRecorder(recorder),
	)

	// Start worker pool
	workers := service.NewMovementWorker(b.journal, publisher).Start(cfg.WorkerCount, inventoryService.MovementQueue())
	logger.Logger.Info().Int("count", cfg.WorkerCount).Msg("started movement workers")

	// Initialize gRPC server
	grpcServer, healthServer := handler.NewGRPCServer(handler.NewGRPCHandler(inventoryService))
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		inventoryService.Close()
		workers.Wait()
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCPort, err)
	}

	// Initialize HTTP server
	router := mux.NewRouter()
	handler.RegisterMiddlewares(router)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	handler.NewHTTPHandler(inventoryService, b.pingers...).RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.CORS(otelhttp.NewHandler(router, "http-server")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Logger.Info().Str("port", cfg.GRPCPort).Msg("gRPC server listening")
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		logger.Logger.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Logger.Info().Msg("shutting down...")

		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		logger.Logger.Info().Msg("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Logger.Info().Msg("gRPC server stopped")
		return err
	})

	err = g.Wait()

	// Close movement queue and wait for workers
	inventoryService.Close()
	workers.Wait()
	logger.Logger.Info().Msg("workers stopped")

	return err
}
