package api

import (
	"context"
	"net/http"
	"time"

	"devmarket/internal/service"
	"devmarket/internal/telemetry"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Orders      service.OrderService
	Reconciler  service.ReconcileService
	Logger      *zap.Logger
	Gatherer    prometheus.Gatherer
	Health      func(ctx context.Context) map[string]string
	CORSOrigins []string
	// MockCheckout is set only with the sandbox gateway.
	MockCheckout *MockCheckout
}

func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())
	r.Use(RequestLogger(d.Logger))
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", PayerHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/health", func(c *gin.Context) {
		if d.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "devmarket"})
			return
		}
		stats := d.Health(c.Request.Context())
		code := http.StatusOK
		if stats["status"] != "up" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": stats["status"], "service": "devmarket", "database": stats})
	})

	orderHandler := NewOrderHandler(d.Orders, d.Logger)
	paymentHandler := NewPaymentHandler(d.Orders, d.Reconciler, d.Logger)

	// provider callbacks carry no payer identity
	r.POST("/payments/notify", paymentHandler.Notify)
	r.GET("/payments", paymentHandler.Status)
	if d.MockCheckout != nil {
		r.GET("/mock-checkout", d.MockCheckout.Handle)
	}

	authed := r.Group("", PayerAuth())
	{
		authed.POST("/orders", orderHandler.CreateOrder)
		authed.GET("/orders", orderHandler.ListOrders)
		authed.GET("/projects/:id/payment-status", orderHandler.ProjectPaymentStatus)
		authed.POST("/payments", paymentHandler.InitiatePayment)
	}

	return r
}
