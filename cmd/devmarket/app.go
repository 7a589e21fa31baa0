package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"devmarket/internal/config"
	"devmarket/internal/database"
	"devmarket/internal/events"
	"devmarket/internal/infrastructure/payment"
	"devmarket/internal/repo"
	"devmarket/internal/service"
	"devmarket/internal/telemetry"
	"devmarket/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds everything the subcommands share. close releases it in reverse
// order of construction.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	metrics    *telemetry.Metrics
	db         *sql.DB
	redis      *redis.Client
	publisher  events.Publisher
	gateway    payment.Gateway
	mock       *payment.MockGateway
	orderRepo  repo.OrderRepo
	orders     service.OrderService
	reconciler service.ReconcileService
	closers    []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = telemetry.NewMetrics(a.registry)

	a.db, err = database.NewPostgres(ctx, cfg.DB.DSN())
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			// the sweep runs lock-less without Redis
			logger.Warn("Redis unreachable, sweep lock disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			a.redis.Close()
			a.redis = nil
		} else {
			a.closers = append(a.closers, a.redis.Close)
		}
	}

	a.publisher = events.Nop()
	if len(cfg.Kafka.Brokers) > 0 {
		a.publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		a.closers = append(a.closers, a.publisher.Close)
	}

	if err := a.buildGateway(); err != nil {
		a.close()
		return nil, err
	}

	paymentRepo := repo.NewPaymentRepo(a.db)
	a.orderRepo = repo.NewOrderRepo(a.db, paymentRepo)
	projectRepo := repo.NewProjectRepo(a.db)

	a.orders = service.NewOrderService(a.orderRepo, projectRepo, a.gateway, a.publisher, a.metrics, logger, service.CallbackURLs{
		Return: cfg.Gateway.ReturnURL,
		Notify: cfg.Gateway.NotifyURL(),
	})
	a.reconciler = service.NewReconcileService(a.orderRepo, a.gateway, a.publisher, a.metrics, logger, cfg.Reconcile.OrderTTL)
	return a, nil
}

func (a *app) buildGateway() error {
	gw := a.cfg.Gateway
	switch gw.Mode {
	case "alipay":
		g, err := payment.NewAlipayGateway(payment.AlipayConfig{
			AppID:      gw.AppID,
			PrivateKey: gw.PrivateKey,
			PublicKey:  gw.PublicKey,
			GatewayURL: gw.URL,
			Production: gw.Production,
			Timeout:    gw.Timeout,
		}, a.logger, a.metrics)
		if err != nil {
			return fmt.Errorf("alipay gateway: %w", err)
		}
		a.gateway = g
	case "mock":
		a.mock = payment.NewMockGateway(gw.MockSecret, gw.PublicBaseURL)
		a.gateway = a.mock
		a.logger.Warn("Using the sandbox payment gateway")
	default:
		return fmt.Errorf("unknown gateway mode %q", gw.Mode)
	}
	return nil
}

func (a *app) newWorker() *worker.ReconciliationWorker {
	var locker worker.Locker
	if a.redis != nil {
		locker = worker.NewRedisLocker(a.redis)
	}
	rc := a.cfg.Reconcile
	return worker.NewReconciliationWorker(a.orderRepo, a.reconciler, locker, a.metrics, a.logger, worker.Config{
		Interval:   rc.Interval,
		StuckAfter: rc.StuckAfter,
		Batch:      rc.Batch,
		LockTTL:    rc.LockTTL,
	})
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
