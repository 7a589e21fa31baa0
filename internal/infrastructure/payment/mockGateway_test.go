package payment

import (
	"context"
	"net/url"
	"testing"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGatewayLifecycle(t *testing.T) {
	t.Parallel()

	gw := NewMockGateway("secret", "http://localhost:8080/")
	ctx := context.Background()
	orderID := uuid.New()

	res, err := gw.QueryStatus(ctx, orderID.String(), "")
	require.NoError(t, err)
	assert.Equal(t, domain.TradeNotExist, res.TradeStatus)

	redirect, err := gw.BuildPaymentRedirect(ctx, RedirectRequest{OrderID: orderID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "/mock-checkout", u.Path)
	assert.Equal(t, "100.00", u.Query().Get("total_amount"))

	res, err = gw.QueryStatus(ctx, orderID.String(), "")
	require.NoError(t, err)
	assert.Equal(t, domain.TradeWaitBuyerPay, res.TradeStatus)

	notification, err := gw.Complete(orderID, BuyerPaid)
	require.NoError(t, err)
	require.NotNil(t, notification)
	assert.True(t, gw.VerifyNotification(notification))

	n, err := ParseNotification(notification)
	require.NoError(t, err)
	assert.Equal(t, orderID, n.OutTradeNo)
	assert.Equal(t, domain.TradeSuccess, n.TradeStatus)
	assert.Equal(t, res.TradeNo, n.TradeNo)

	gw.SetUnavailable(true)
	_, err = gw.QueryStatus(ctx, orderID.String(), "")
	require.ErrorIs(t, err, apperr.ErrGatewayUnavailable)
}

func TestMockGatewayOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome    BuyerOutcome
		wantStatus domain.TradeStatus
		notified   bool
	}{
		{BuyerPaid, domain.TradeSuccess, true},
		{BuyerDeclined, domain.TradeClosed, true},
		{BuyerPaidSilently, domain.TradeSuccess, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.outcome.String(), func(t *testing.T) {
			t.Parallel()

			gw := NewMockGateway("secret", "http://localhost")
			orderID := uuid.New()
			_, err := gw.BuildPaymentRedirect(context.Background(), RedirectRequest{OrderID: orderID, Amount: decimal.NewFromInt(5)})
			require.NoError(t, err)

			notification, err := gw.Complete(orderID, tt.outcome)
			require.NoError(t, err)
			assert.Equal(t, tt.notified, notification != nil)

			res, err := gw.QueryStatus(context.Background(), orderID.String(), "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.TradeStatus)
		})
	}
}

func TestMockGatewayRejectsTampering(t *testing.T) {
	t.Parallel()

	gw := NewMockGateway("secret", "http://localhost")
	params := gw.Notification(uuid.NewString(), "T1", domain.TradeSuccess, decimal.NewFromInt(100))
	require.True(t, gw.VerifyNotification(params))

	params.Set("total_amount", "1.00")
	assert.False(t, gw.VerifyNotification(params))

	other := NewMockGateway("other-secret", "http://localhost")
	assert.False(t, other.VerifyNotification(gw.Notification(uuid.NewString(), "T1", domain.TradeSuccess, decimal.NewFromInt(1))))
}

func TestMockGatewayCompleteUnknown(t *testing.T) {
	t.Parallel()

	gw := NewMockGateway("secret", "http://localhost")
	_, err := gw.Complete(uuid.New(), BuyerPaid)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
