package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"
	"devmarket/internal/infrastructure/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type orderFixture struct {
	orders  *memOrders
	project domain.Project
	gateway *payment.MockGateway
	svc     OrderService
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	project := domain.Project{ID: uuid.New(), Title: "Landing page rewrite", Budget: decimal.RequireFromString("250.00")}
	orders := newMemOrders()
	gw := payment.NewMockGateway("test-secret", "http://localhost:8080")
	svc := NewOrderService(orders, newMemProjects(project), gw, nil, nil, zap.NewNop(), CallbackURLs{
		Return: "http://localhost:3000/payments/result",
		Notify: "http://localhost:8080/payments/notify",
	})
	return &orderFixture{orders: orders, project: project, gateway: gw, svc: svc}
}

func TestCreateOrderReturnsOpenOrder(t *testing.T) {
	t.Parallel()

	f := newOrderFixture(t)
	ctx := context.Background()
	payer := uuid.New()

	first, err := f.svc.CreateOrder(ctx, payer, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, first.Status)
	assert.True(t, first.Amount.Equal(f.project.Budget))

	second, err := f.svc.CreateOrder(ctx, payer, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := f.svc.CreateOrder(ctx, uuid.New(), f.project.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCreateOrderUnknownProject(t *testing.T) {
	t.Parallel()

	f := newOrderFixture(t)
	_, err := f.svc.CreateOrder(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestInitiatePayment(t *testing.T) {
	t.Parallel()

	f := newOrderFixture(t)
	ctx := context.Background()
	payer := uuid.New()

	order, err := f.svc.CreateOrder(ctx, payer, f.project.ID)
	require.NoError(t, err)

	redirect, err := f.svc.InitiatePayment(ctx, payer, order.ID)
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, order.ID.String(), q.Get("out_trade_no"))
	assert.Equal(t, "250.00", q.Get("total_amount"))
	assert.Equal(t, f.project.Title, q.Get("subject"))
	assert.Equal(t, "http://localhost:8080/payments/notify", q.Get("notify_url"))

	// initiating never settles the order
	assert.Equal(t, domain.OrderPending, f.orders.status(order.ID))

	_, err = f.svc.InitiatePayment(ctx, uuid.New(), order.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.InitiatePayment(ctx, payer, uuid.New())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestInitiatePaymentRejectsSettledOrder(t *testing.T) {
	t.Parallel()

	f := newOrderFixture(t)
	payer := uuid.New()

	for _, status := range []domain.OrderStatus{domain.OrderPaid, domain.OrderCancelled} {
		order := f.orders.seed(payer, f.project.ID, "250.00", status, time.Now())
		_, err := f.svc.InitiatePayment(context.Background(), payer, order.ID)
		require.ErrorIs(t, err, apperr.ErrValidation, "status %s", status)
	}
}

func TestProjectPaymentStatus(t *testing.T) {
	t.Parallel()

	f := newOrderFixture(t)
	ctx := context.Background()
	payer := uuid.New()

	paid, err := f.svc.ProjectPaymentStatus(ctx, payer, f.project.ID)
	require.NoError(t, err)
	assert.False(t, paid)

	order, err := f.svc.CreateOrder(ctx, payer, f.project.ID)
	require.NoError(t, err)

	paid, err = f.svc.ProjectPaymentStatus(ctx, payer, f.project.ID)
	require.NoError(t, err)
	assert.False(t, paid)

	_, _, err = f.orders.MarkPaid(ctx, order.ID, domain.PaymentDetails{Method: "MOCK", TransactionID: "T1"}, domain.SourceWebhook)
	require.NoError(t, err)

	paid, err = f.svc.ProjectPaymentStatus(ctx, payer, f.project.ID)
	require.NoError(t, err)
	assert.True(t, paid)

	orders, err := f.svc.ListOrders(ctx, payer)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].Payment)
	assert.Equal(t, "T1", orders[0].Payment.TransactionID)
}
