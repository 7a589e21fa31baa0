package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"devmarket/internal/config"
	"devmarket/internal/database"
	"devmarket/internal/domain"
	"devmarket/internal/events"
	"devmarket/internal/infrastructure/payment"
	"devmarket/internal/repo"
	"devmarket/internal/service"
	"devmarket/internal/telemetry"
	"devmarket/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// simulate drives orders through the sandbox gateway against a real
// database: notifications are redelivered and raced against client status
// polls, some notifications are lost, and a final sweep must settle them.
// It exits non-zero if any order ends with a payment count that does not
// match its status.
func main() {
	var (
		orders     int
		deliveries int
		envFile    string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Race provider notifications, status polls and the sweep against each other",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), envFile, orders, deliveries)
		},
	}
	cmd.Flags().IntVarP(&orders, "orders", "n", 20, "orders to simulate")
	cmd.Flags().IntVar(&deliveries, "deliveries", 3, "times each notification is delivered, each raced by a status poll")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string, n, deliveries int) error {
	// the sandbox gateway only lives inside this process
	for k, v := range map[string]string{"GATEWAY_MODE": "mock", "ALLOW_SANDBOX_GATEWAY": "true"} {
		if _, set := os.LookupEnv(k); !set {
			os.Setenv(k, v)
		}
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logger, err := telemetry.NewLogger("warn")
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := database.NewPostgres(ctx, cfg.DB.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	projectRepo := repo.NewProjectRepo(db)
	project := &domain.Project{ID: uuid.New(), Title: "Simulation project", Budget: decimal.RequireFromString("199.90")}
	if err := projectRepo.Save(ctx, project); err != nil {
		return err
	}

	paymentRepo := repo.NewPaymentRepo(db)
	orderRepo := repo.NewOrderRepo(db, paymentRepo)
	gateway := payment.NewMockGateway(cfg.Gateway.MockSecret, cfg.Gateway.PublicBaseURL)
	orderService := service.NewOrderService(orderRepo, projectRepo, gateway, events.Nop(), nil, logger, service.CallbackURLs{
		Return: cfg.Gateway.ReturnURL,
		Notify: cfg.Gateway.NotifyURL(),
	})
	reconciler := service.NewReconcileService(orderRepo, gateway, events.Nop(), nil, logger, cfg.Reconcile.OrderTTL)

	fmt.Printf("--- STARTING SIMULATION (%d ORDERS) ---\n", n)
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		payer := uuid.New()
		order, err := orderService.CreateOrder(ctx, payer, project.ID)
		if err != nil {
			fmt.Printf("[%d] create failed: %v\n", i+1, err)
			continue
		}
		if _, err := orderService.InitiatePayment(ctx, payer, order.ID); err != nil {
			fmt.Printf("[%d] initiate failed: %v\n", i+1, err)
			continue
		}
		ids = append(ids, order.ID)

		outcome := payment.RandomOutcome()
		notification, err := gateway.Complete(order.ID, outcome)
		if err != nil {
			return err
		}
		fmt.Printf("[%d] order %s buyer %-18s", i+1, order.ID, outcome)

		g, gctx := errgroup.WithContext(ctx)
		for d := 0; d < deliveries; d++ {
			if notification != nil {
				g.Go(func() error {
					_, err := reconciler.HandleNotification(gctx, notification)
					return err
				})
			}
			g.Go(func() error {
				_, err := reconciler.HandleStatusQuery(gctx, order.ID.String(), "")
				return err
			})
		}
		if err := g.Wait(); err != nil {
			fmt.Printf(" signal error: %v\n", err)
			continue
		}

		fresh, err := orderRepo.FindById(ctx, order.ID)
		if err != nil {
			return err
		}
		fmt.Printf(" -> %s\n", fresh.Status)
	}

	// polls already settled the silent payments; the sweep cancels declined trades
	sweep := worker.NewReconciliationWorker(orderRepo, reconciler, nil, nil, logger, worker.Config{
		Interval:   time.Second,
		StuckAfter: -time.Second,
		Batch:      n,
	})
	summary, err := sweep.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("--- SWEEP: %v ---\n", summary)

	violations := 0
	counts := map[domain.OrderStatus]int{}
	for _, id := range ids {
		order, err := orderRepo.FindById(ctx, id)
		if err != nil {
			return err
		}
		payments, err := paymentRepo.CountByOrderID(ctx, id)
		if err != nil {
			return err
		}
		counts[order.Status]++

		want := 0
		if order.Status == domain.OrderPaid {
			want = 1
		}
		if payments != want {
			violations++
			logger.Error("Payment count does not match order status",
				zap.String("order_id", id.String()),
				zap.String("status", string(order.Status)),
				zap.Int("payments", payments),
			)
		}
	}

	fmt.Printf("--- RESULT: %v, violations: %d ---\n", counts, violations)
	if violations > 0 {
		return fmt.Errorf("%d orders violate one-payment-per-paid-order", violations)
	}
	return nil
}
