package api

import (
	"net/http"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"
	"devmarket/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

type createOrderRequest struct {
	ProjectID string `json:"projectId"`
}

type createOrderResponse struct {
	OrderID uuid.UUID `json:"orderId"`
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Invalid("body", "expected JSON with projectId"))
		return
	}
	projectID, err := parseID("projectId", req.ProjectID)
	if err != nil {
		writeError(c, err)
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), payerFrom(c), projectID)
	if err != nil {
		h.logFailure("create order", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, createOrderResponse{OrderID: order.ID})
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), payerFrom(c))
	if err != nil {
		h.logFailure("list orders", err)
		writeError(c, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) ProjectPaymentStatus(c *gin.Context) {
	projectID, err := parseID("id", c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	paid, err := h.orders.ProjectPaymentStatus(c.Request.Context(), payerFrom(c), projectID)
	if err != nil {
		h.logFailure("project payment status", err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isPaid": paid})
}

func (h *OrderHandler) logFailure(op string, err error) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger.Error("Failed to "+op, zap.Error(err))
	}
}

func parseID(field, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, apperr.Invalid(field, "required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Invalid(field, "not a valid id")
	}
	return id, nil
}
