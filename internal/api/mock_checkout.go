package api

import (
	"net/http"

	"devmarket/internal/apperr"
	"devmarket/internal/infrastructure/payment"
	"devmarket/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MockCheckout stands in for the provider's hosted checkout page when the
// sandbox gateway is configured. It settles the trade and delivers the signed
// notification back through the normal notify path.
type MockCheckout struct {
	gateway    *payment.MockGateway
	reconciler service.ReconcileService
	logger     *zap.Logger
}

func NewMockCheckout(gateway *payment.MockGateway, reconciler service.ReconcileService, logger *zap.Logger) *MockCheckout {
	return &MockCheckout{gateway: gateway, reconciler: reconciler, logger: logger}
}

var buyerOutcomes = map[string]payment.BuyerOutcome{
	"paid":     payment.BuyerPaid,
	"declined": payment.BuyerDeclined,
	"silent":   payment.BuyerPaidSilently,
}

func (m *MockCheckout) Handle(c *gin.Context) {
	orderID, err := parseID("out_trade_no", c.Query("out_trade_no"))
	if err != nil {
		writeError(c, err)
		return
	}

	outcome := payment.RandomOutcome()
	if raw := c.Query("outcome"); raw != "" {
		o, ok := buyerOutcomes[raw]
		if !ok {
			writeError(c, apperr.Invalid("outcome", "expected paid, declined or silent"))
			return
		}
		outcome = o
	}

	notification, err := m.gateway.Complete(orderID, outcome)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"orderId": orderID, "outcome": outcome.String(), "notified": notification != nil}
	if notification != nil {
		result, err := m.reconciler.HandleNotification(c.Request.Context(), notification)
		if err != nil {
			m.logger.Warn("Mock notification rejected", zap.String("order_id", orderID.String()), zap.Error(err))
			resp["notifyError"] = apperr.Kind(err)
		} else {
			resp["notifyResult"] = result
		}
	}
	c.JSON(http.StatusOK, resp)
}
