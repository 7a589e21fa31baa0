package worker

import (
	"context"
	"fmt"
	"time"

	"devmarket/internal/domain"
	"devmarket/internal/service"
	"devmarket/internal/telemetry"

	"go.uber.org/zap"
)

type Config struct {
	Interval   time.Duration
	StuckAfter time.Duration
	Batch      int
	LockTTL    time.Duration
}

// StuckOrderFinder is the slice of the order store the sweep reads from.
type StuckOrderFinder interface {
	FindStuckOrders(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
}

// ReconciliationWorker periodically asks the provider about orders that have
// sat in PENDING too long. It covers notifications that never arrived.
type ReconciliationWorker struct {
	orderRepo  StuckOrderFinder
	reconciler service.ReconcileService
	locker     Locker
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	cfg        Config
}

func NewReconciliationWorker(
	orderRepo StuckOrderFinder,
	reconciler service.ReconcileService,
	locker Locker,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
	cfg Config,
) *ReconciliationWorker {
	if locker == nil {
		locker = noLock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &ReconciliationWorker{
		orderRepo:  orderRepo,
		reconciler: reconciler,
		locker:     locker,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (rw *ReconciliationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(rw.cfg.Interval)
	defer ticker.Stop()

	rw.logger.Info("Reconciliation worker started",
		zap.Duration("interval", rw.cfg.Interval),
		zap.Duration("stuck_after", rw.cfg.StuckAfter),
	)

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("Reconciliation worker stopped")
			return nil
		case <-ticker.C:
			if _, err := rw.RunOnce(ctx); err != nil {
				rw.logger.Error("Reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

// Summary counts sweep results by kind.
type Summary map[service.SweepResult]int

// RunOnce sweeps one batch of stuck orders. A failure on one order is logged
// and the sweep moves on; the order is picked up again next time.
func (rw *ReconciliationWorker) RunOnce(ctx context.Context) (Summary, error) {
	stuck, err := rw.orderRepo.FindStuckOrders(ctx, rw.cfg.StuckAfter, rw.cfg.Batch)
	if err != nil {
		return nil, fmt.Errorf("find stuck orders: %w", err)
	}

	summary := Summary{}
	if len(stuck) == 0 {
		return summary, nil
	}
	rw.logger.Info("Found stuck orders", zap.Int("count", len(stuck)))

	for _, order := range stuck {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		result, ok := rw.reconcile(ctx, order)
		if !ok {
			continue
		}
		summary[result]++
		rw.metrics.Swept(string(result))
	}
	return summary, nil
}

func (rw *ReconciliationWorker) reconcile(ctx context.Context, order domain.Order) (service.SweepResult, bool) {
	log := rw.logger.With(zap.String("order_id", order.ID.String()))

	key := "reconcile_lock:" + order.ID.String()
	locked, err := rw.locker.TryLock(ctx, key, rw.cfg.LockTTL)
	if err != nil {
		// the CAS in the store keeps a lock-less sweep safe
		log.Warn("Sweep lock unavailable, continuing without it", zap.Error(err))
	} else if !locked {
		log.Debug("Order is being reconciled elsewhere")
		return "", false
	} else {
		defer rw.locker.Unlock(context.WithoutCancel(ctx), key)
	}

	result, err := rw.reconciler.ReconcileOrder(ctx, order)
	if err != nil {
		rw.metrics.Swept("error")
		log.Error("Failed to reconcile order", zap.Error(err))
		return "", false
	}
	if result == service.SweepUnavailable {
		log.Warn("Provider unavailable, order left for the next sweep")
	}
	return result, true
}
