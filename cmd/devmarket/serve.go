package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"devmarket/internal/api"
	"devmarket/internal/database"
	"devmarket/internal/telemetry"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reconciliation sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, !noWorker)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve HTTP only, without the reconciliation sweep")
	return cmd
}

func runServe(ctx context.Context, withWorker bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	shutdownTracing, err := telemetry.InitTracing(ctx, "devmarket", a.cfg.OTLP)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	deps := api.Deps{
		Orders:      a.orders,
		Reconciler:  a.reconciler,
		Logger:      a.logger,
		Gatherer:    a.registry,
		CORSOrigins: a.cfg.CORSOrigins,
		Health: func(ctx context.Context) map[string]string {
			return database.Health(ctx, a.db)
		},
	}
	if a.mock != nil && a.cfg.Gateway.AllowSandbox {
		deps.MockCheckout = api.NewMockCheckout(a.mock, a.reconciler, a.logger)
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("HTTP server listening", zap.String("addr", srv.Addr), zap.String("gateway", a.gateway.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down HTTP server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if withWorker {
		w := a.newWorker()
		g.Go(func() error { return w.Run(gctx) })
	}

	return g.Wait()
}
