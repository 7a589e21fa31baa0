package api

import (
	"errors"
	"net/http"

	"devmarket/internal/apperr"
	"devmarket/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// The provider only looks for this exact body; anything else is a retry.
const (
	notifyAck  = "success"
	notifyFail = "fail"
)

type PaymentHandler struct {
	orders     service.OrderService
	reconciler service.ReconcileService
	logger     *zap.Logger
}

func NewPaymentHandler(orders service.OrderService, reconciler service.ReconcileService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{orders: orders, reconciler: reconciler, logger: logger}
}

type initiatePaymentRequest struct {
	OrderID string `json:"orderId"`
}

type initiatePaymentResponse struct {
	PayURL string `json:"payUrl"`
}

func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("body", "expected JSON with orderId"))
		return
	}
	orderID, err := parseID("orderId", req.OrderID)
	if err != nil {
		writeError(c, err)
		return
	}

	payURL, err := h.orders.InitiatePayment(c.Request.Context(), payerFrom(c), orderID)
	if err != nil {
		if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
			h.logger.Error("Failed to initiate payment", zap.String("order_id", orderID.String()), zap.Error(err))
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, initiatePaymentResponse{PayURL: payURL})
}

// Notify receives the provider's form-encoded server-to-server callback.
func (h *PaymentHandler) Notify(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, notifyFail)
		return
	}

	_, err := h.reconciler.HandleNotification(c.Request.Context(), c.Request.PostForm)
	if err != nil {
		c.String(notifyStatus(err), notifyFail)
		return
	}
	c.String(http.StatusOK, notifyAck)
}

func notifyStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrSignatureInvalid),
		errors.Is(err, apperr.ErrAmountMismatch):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Status answers the return-page poll. An unreachable provider yields
// status "unknown" with 200 so the client retries instead of failing.
func (h *PaymentHandler) Status(c *gin.Context) {
	outTradeNo := c.Query("out_trade_no")
	if outTradeNo == "" {
		writeError(c, apperr.Invalid("out_trade_no", "required"))
		return
	}

	view, err := h.reconciler.HandleStatusQuery(c.Request.Context(), outTradeNo, c.Query("trade_no"))
	if err != nil {
		if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
			h.logger.Error("Failed to query payment status", zap.String("order_id", outTradeNo), zap.Error(err))
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
