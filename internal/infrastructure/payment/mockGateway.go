package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuyerOutcome is what a simulated buyer did on the hosted checkout page.
type BuyerOutcome int

const (
	// BuyerPaid: charged and the notification is delivered.
	BuyerPaid BuyerOutcome = iota
	// BuyerDeclined: the card was declined and the trade closed.
	BuyerDeclined
	// BuyerPaidSilently: charged, but the notification never arrives. Only
	// a status query or the sweep can discover the payment.
	BuyerPaidSilently
)

func (o BuyerOutcome) String() string {
	switch o {
	case BuyerPaid:
		return "paid"
	case BuyerDeclined:
		return "declined"
	case BuyerPaidSilently:
		return "paid_silently"
	}
	return "unknown"
}

type mockTrade struct {
	tradeNo string
	status  domain.TradeStatus
	amount  decimal.Decimal
}

// MockGateway is an in-process sandbox provider for local development and
// simulations. Notifications are signed with HMAC-SHA256 over the same
// canonical string the real provider uses.
type MockGateway struct {
	mu          sync.RWMutex
	trades      map[string]*mockTrade
	secret      []byte
	checkoutURL string
	unavailable bool
}

func NewMockGateway(secret, checkoutURL string) *MockGateway {
	return &MockGateway{
		trades:      make(map[string]*mockTrade),
		secret:      []byte(secret),
		checkoutURL: strings.TrimRight(checkoutURL, "/") + "/mock-checkout",
	}
}

func (g *MockGateway) Name() string { return "MOCK" }

// BuildPaymentRedirect opens a WAIT_BUYER_PAY trade for the order, keyed by
// the order id so repeated redirects reuse it.
func (g *MockGateway) BuildPaymentRedirect(_ context.Context, req RedirectRequest) (string, error) {
	key := req.OrderID.String()

	g.mu.Lock()
	if _, exists := g.trades[key]; !exists {
		g.trades[key] = &mockTrade{
			tradeNo: "MOCK" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24],
			status:  domain.TradeWaitBuyerPay,
			amount:  req.Amount,
		}
	}
	g.mu.Unlock()

	params := url.Values{}
	params.Set("out_trade_no", key)
	params.Set("total_amount", FormatAmount(req.Amount))
	params.Set("subject", req.Subject)
	params.Set("return_url", req.ReturnURL)
	params.Set("notify_url", req.NotifyURL)
	params.Set("sign", signHMAC(g.secret, []byte(canonical(params))))
	return g.checkoutURL + "?" + params.Encode(), nil
}

func (g *MockGateway) VerifyNotification(params url.Values) bool {
	sig := params.Get("sign")
	if sig == "" {
		return false
	}
	return verifyHMAC(g.secret, []byte(canonical(params)), sig)
}

func (g *MockGateway) QueryStatus(_ context.Context, outTradeNo, _ string) (domain.TradeQueryResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.unavailable {
		return domain.TradeQueryResult{}, fmt.Errorf("mock query %s: connection timeout: %w", outTradeNo, apperr.ErrGatewayUnavailable)
	}
	trade, exists := g.trades[outTradeNo]
	if !exists {
		return domain.TradeQueryResult{OutTradeNo: outTradeNo, TradeStatus: domain.TradeNotExist}, nil
	}
	return domain.TradeQueryResult{
		OutTradeNo:  outTradeNo,
		TradeNo:     trade.tradeNo,
		TradeStatus: trade.status,
		TotalAmount: trade.amount,
	}, nil
}

// SetUnavailable makes every query fail as if the provider were unreachable.
func (g *MockGateway) SetUnavailable(down bool) {
	g.mu.Lock()
	g.unavailable = down
	g.mu.Unlock()
}

// Complete settles the trade with the given outcome and returns the signed
// notification the provider would push. The returned notification is nil for
// BuyerPaidSilently.
func (g *MockGateway) Complete(orderID uuid.UUID, outcome BuyerOutcome) (url.Values, error) {
	key := orderID.String()

	g.mu.Lock()
	trade, exists := g.trades[key]
	if !exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("mock trade %s: %w", key, apperr.ErrNotFound)
	}
	switch outcome {
	case BuyerDeclined:
		trade.status = domain.TradeClosed
	default:
		trade.status = domain.TradeSuccess
	}
	snapshot := *trade
	g.mu.Unlock()

	if outcome == BuyerPaidSilently {
		return nil, nil
	}
	return g.Notification(key, snapshot.tradeNo, snapshot.status, snapshot.amount), nil
}

// Notification builds a signed notification payload.
func (g *MockGateway) Notification(outTradeNo, tradeNo string, status domain.TradeStatus, amount decimal.Decimal) url.Values {
	params := url.Values{}
	params.Set("notify_id", uuid.NewString())
	params.Set("out_trade_no", outTradeNo)
	params.Set("trade_no", tradeNo)
	params.Set("trade_status", string(status))
	params.Set("total_amount", FormatAmount(amount))
	params.Set("sign_type", "HMAC-SHA256")
	params.Set("sign", signHMAC(g.secret, []byte(canonical(params))))
	return params
}

// RandomOutcome draws a buyer behaviour: 70% paid, 20% declined, 10% paid
// with the notification lost.
func RandomOutcome() BuyerOutcome {
	chance := rand.IntN(100)
	switch {
	case chance < 70:
		return BuyerPaid
	case chance < 90:
		return BuyerDeclined
	default:
		return BuyerPaidSilently
	}
}
