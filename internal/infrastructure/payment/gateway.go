package payment

import (
	"context"
	"net/url"
	"strings"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway hides one provider's protocol: redirect construction, notification
// authenticity, and synchronous trade queries. Implementations hold no order
// state of ours and never mutate it.
type Gateway interface {
	Name() string
	BuildPaymentRedirect(ctx context.Context, req RedirectRequest) (string, error)
	// VerifyNotification reports whether params carry a valid provider
	// signature. Malformed input yields false.
	VerifyNotification(params url.Values) bool
	QueryStatus(ctx context.Context, outTradeNo, tradeNo string) (domain.TradeQueryResult, error)
}

type RedirectRequest struct {
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	Subject   string
	ReturnURL string
	NotifyURL string
}

// FormatAmount renders an amount the way providers expect it: fixed two
// decimals, no grouping.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseNotification turns verified notification form fields into a typed
// value. It does not check the signature.
func ParseNotification(params url.Values) (domain.ProviderNotification, error) {
	var n domain.ProviderNotification

	outTradeNo := strings.TrimSpace(params.Get("out_trade_no"))
	if outTradeNo == "" {
		return n, apperr.Invalid("out_trade_no", "missing")
	}
	id, err := uuid.Parse(outTradeNo)
	if err != nil {
		return n, apperr.Invalid("out_trade_no", "not an order id")
	}
	n.OutTradeNo = id

	status := strings.TrimSpace(params.Get("trade_status"))
	if status == "" {
		return n, apperr.Invalid("trade_status", "missing")
	}
	n.TradeStatus = domain.TradeStatus(status)

	n.TradeNo = strings.TrimSpace(params.Get("trade_no"))
	if n.TradeNo == "" {
		return n, apperr.Invalid("trade_no", "missing")
	}

	if raw := strings.TrimSpace(params.Get("total_amount")); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return n, apperr.Invalid("total_amount", "not a decimal")
		}
		n.TotalAmount = amount
		n.HasAmount = true
	}

	n.NotifyID = params.Get("notify_id")
	return n, nil
}
