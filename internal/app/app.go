// Package app собирает сервис продаж: хранилища, сагу, HTTP API, брокеры и наблюдаемость.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/autosales/internal/health"
	"github.com/vladislavdragonenkov/autosales/internal/metrics"
	"github.com/vladislavdragonenkov/autosales/internal/service/catalog"
	"github.com/vladislavdragonenkov/autosales/internal/service/outbox"
	"github.com/vladislavdragonenkov/autosales/internal/service/payment"
	"github.com/vladislavdragonenkov/autosales/internal/service/saga"
	"github.com/vladislavdragonenkov/autosales/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/autosales/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second
	stopTimeout       = 5 * time.Second
)

// runtime держит собранные компоненты сервиса до открытия портов.
type runtime struct {
	cfg      Config
	logger   *log.Entry
	registry *prometheus.Registry

	storage   *storage
	events    *events
	initiator *saga.Initiator
	worker    *outbox.Worker
	cleanup   *outbox.CleanupWorker
	health    *health.Handler

	api        http.Handler
	grpcServer *grpc.Server
	grpcHealth *grpchealth.Server
}

func newRuntime(ctx context.Context, cfg Config, logger *log.Entry) (*runtime, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sagaMetrics := metrics.NewSagaMetricsWithRegisterer(registry)

	st, err := initStorage(ctx, cfg, logger.WithField("component", "storage"))
	if err != nil {
		return nil, err
	}

	sagaCfg := cfg.SagaConfig()
	steps := saga.NewSteps(saga.Dependencies{
		Vehicles:     st.vehicles,
		Reservations: st.reservations,
		Sales:        st.sales,
		Clients:      st.clients,
		Logger:       logger.WithField("component", "saga-step"),
	}, sagaCfg)
	orchestrator := saga.NewOrchestrator(steps, sagaCfg, saga.Options{
		Executions: st.executions,
		Outbox:     st.outbox,
		Timeline:   st.timeline,
		Logger:     logger.WithField("component", "saga"),
		Metrics:    sagaMetrics,
	})
	initiator := saga.NewInitiator(orchestrator, st.executions, sagaCfg, logger.WithField("component", "saga-initiator"))

	callbacks := payment.NewCallbackHandler(st.sales, st.timeline, sagaMetrics, logger.WithField("component", "payment-callback"))
	catalogSvc := catalog.NewService(catalog.Repositories{
		Vehicles:     st.vehicles,
		Reservations: st.reservations,
		Sales:        st.sales,
		Clients:      st.clients,
		Executions:   st.executions,
		Timeline:     st.timeline,
	}, logger.WithField("component", "catalog"))

	ev, err := initEvents(cfg, callbacks, logger)
	if err != nil {
		_ = st.close()
		return nil, err
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		storage:   st,
		events:    ev,
		initiator: initiator,
		health:    health.NewHandler(version.Version()),
		api:       httpapi.NewServer(initiator, callbacks, catalogSvc, logger.WithField("component", "http-api")).Router(),
	}

	for name, check := range st.checks {
		rt.health.Register(name, check)
	}
	for name, check := range st.optional {
		rt.health.RegisterOptional(name, check)
	}

	if ev.publisher != nil {
		outboxMetrics := outbox.NewMetrics(registry)
		rt.worker = outbox.NewWorker(st.outbox, ev.publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(outboxMetrics),
			outbox.WithDLQPublisher(ev.dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		)
		rt.cleanup = outbox.NewCleanupWorker(st.outbox, outbox.CleanupOptions{
			Logger:    logger.WithField("component", "outbox-cleanup"),
			Metrics:   outboxMetrics,
			Interval:  cfg.OutboxCleanupInterval,
			Retention: cfg.OutboxRetention,
		})
	}

	rt.initGRPC()
	return rt, nil
}

// initGRPC поднимает gRPC health и reflection с метриками интерсепторов.
func (rt *runtime) initGRPC() {
	grpcMetrics := promgrpc.NewServerMetrics()
	rt.registry.MustRegister(grpcMetrics)

	rt.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	rt.grpcHealth = grpchealth.NewServer()
	rt.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	rt.grpcHealth.SetServingStatus(version.Service(), healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(rt.grpcServer, rt.grpcHealth)
	reflection.Register(rt.grpcServer)
	grpcMetrics.InitializeMetrics(rt.grpcServer)
}

func (rt *runtime) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{Registry: rt.registry}))
	mux.Handle("/healthz", rt.health)
	mux.HandleFunc("/readyz", rt.health.ReadinessHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	return mux
}

// Run запускает сервис и блокируется до отмены ctx или ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := NewLogger(cfg.LogLevel).WithField("component", "app")

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}

	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		rt.release()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = apiLis.Close()
		rt.release()
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = apiLis.Close()
		_ = grpcLis.Close()
		rt.release()
		return fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
	}

	apiSrv := &http.Server{Handler: rt.api, ReadHeaderTimeout: readHeaderTimeout}
	metricsSrv := &http.Server{Handler: rt.metricsHandler(), ReadHeaderTimeout: readHeaderTimeout}

	background, stopBackground := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if rt.worker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.worker.Run(background)
		}()
	}
	if rt.cleanup != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.cleanup.Run(background)
		}()
	}
	if rt.events.consumer != nil {
		if err := rt.events.consumer.Start(background); err != nil {
			logger.WithError(err).Warn("kafka consumer did not start")
		}
	}

	errCh := make(chan error, 3)
	serve := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}
	serve("http", func() error { return apiSrv.Serve(apiLis) })
	serve("grpc", func() error { return rt.grpcServer.Serve(grpcLis) })
	serve("metrics", func() error { return metricsSrv.Serve(metricsLis) })

	logger.WithFields(log.Fields{
		"http":    apiLis.Addr().String(),
		"grpc":    grpcLis.Addr().String(),
		"metrics": metricsLis.Addr().String(),
		"version": version.String(),
	}).Info("sales service started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server failed, shutting down")
	}

	// Порядок: перестаём принимать покупки, ждём саги, гасим фоновые задачи.
	rt.grpcHealth.Shutdown()
	shutdownHTTP(apiSrv, logger)

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := rt.initiator.Shutdown(drainCtx); err != nil {
		logger.WithError(err).Warn("running sagas were interrupted and compensated")
	}
	cancelDrain()

	stopBackground()
	wg.Wait()
	stopGRPC(rt.grpcServer, logger)
	shutdownHTTP(metricsSrv, logger)
	rt.release()

	return runErr
}

// release закрывает брокеры и хранилища.
func (rt *runtime) release() {
	if err := rt.events.close(); err != nil {
		rt.logger.WithError(err).Warn("close event broker")
	}
	if err := rt.storage.close(); err != nil {
		rt.logger.WithError(err).Warn("close storage")
	}
}

func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(stopTimeout):
		logger.Warn("grpc graceful stop timed out, forcing")
		srv.Stop()
	}
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
