package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
)

type Payment struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"orderId"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	TransactionID string          `json:"transactionId"`
	Status        PaymentStatus   `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// PaymentDetails is what a reconciliation signal knows about a settled trade.
// Amount is invalid when the provider did not report one.
type PaymentDetails struct {
	Method        string
	TransactionID string
	Amount        decimal.NullDecimal
}

// TradeStatus is the provider's view of a trade.
type TradeStatus string

const (
	TradeWaitBuyerPay TradeStatus = "WAIT_BUYER_PAY"
	TradeClosed       TradeStatus = "TRADE_CLOSED"
	TradeSuccess      TradeStatus = "TRADE_SUCCESS"
	TradeFinished     TradeStatus = "TRADE_FINISHED"
	TradeNotExist     TradeStatus = "TRADE_NOT_EXIST"
)

// Paid reports whether the provider considers the buyer charged.
func (s TradeStatus) Paid() bool {
	return s == TradeSuccess || s == TradeFinished
}

// ProviderNotification is a verified, typed server-to-server notification.
type ProviderNotification struct {
	OutTradeNo  uuid.UUID
	TradeNo     string
	TradeStatus TradeStatus
	TotalAmount decimal.Decimal
	// HasAmount is false when the provider omitted total_amount.
	HasAmount bool
	NotifyID  string
}

// TradeQueryResult is the provider's answer to a synchronous status query.
type TradeQueryResult struct {
	OutTradeNo  string
	TradeNo     string
	TradeStatus TradeStatus
	TotalAmount decimal.Decimal
}
