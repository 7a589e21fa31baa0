package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

// transitions lists every allowed status move. Anything absent is a conflict.
var transitions = map[OrderStatus][]OrderStatus{
	OrderPending: {OrderPaid, OrderCancelled},
	OrderPaid:    {OrderRefunded},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave the status.
// PAID is not terminal: it can still be refunded.
func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

type Order struct {
	ID        uuid.UUID       `json:"id"`
	PayerID   uuid.UUID       `json:"payerId"`
	ProjectID uuid.UUID       `json:"projectId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`

	// Payment is only populated by queries that join it.
	Payment *Payment `json:"payment,omitempty"`
}

// TransitionSource names the signal that drove a status change.
type TransitionSource string

const (
	SourceCreate  TransitionSource = "create"
	SourceWebhook TransitionSource = "webhook"
	SourceQuery   TransitionSource = "query"
	SourceSweep   TransitionSource = "sweep"
)

// OrderTransition is one row of the append-only status history.
type OrderTransition struct {
	ID        int64
	OrderID   uuid.UUID
	From      OrderStatus
	To        OrderStatus
	Source    TransitionSource
	Reference string
	CreatedAt time.Time
}

type Project struct {
	ID     uuid.UUID
	Title  string
	Budget decimal.Decimal
}
