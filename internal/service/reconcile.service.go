package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"
	"devmarket/internal/events"
	"devmarket/internal/infrastructure/payment"
	"devmarket/internal/repo"
	"devmarket/internal/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NotifyOutcome says what a provider notification did.
type NotifyOutcome string

const (
	NotifyApplied   NotifyOutcome = "applied"
	NotifyDuplicate NotifyOutcome = "duplicate"
	NotifyIgnored   NotifyOutcome = "ignored"
)

// ClientStatus is what the payer's success/pending/failed screen shows. It is
// derived from our stored order, never from a raw provider response.
type ClientStatus string

const (
	ClientSuccess  ClientStatus = "success"
	ClientPending  ClientStatus = "pending"
	ClientFailed   ClientStatus = "failed"
	ClientRefunded ClientStatus = "refunded"
	ClientUnknown  ClientStatus = "unknown"
)

type StatusView struct {
	OrderID     uuid.UUID          `json:"orderId"`
	Status      ClientStatus       `json:"status"`
	TradeStatus domain.TradeStatus `json:"tradeStatus,omitempty"`
	// Retryable is set when the provider could not be asked; the order is
	// unchanged and the client should check again later.
	Retryable bool `json:"retryable"`
}

// SweepResult names what the reconciliation sweep did with one order.
type SweepResult string

const (
	SweepPaid        SweepResult = "paid"
	SweepAlreadyPaid SweepResult = "already_paid"
	SweepCancelled   SweepResult = "cancelled"
	SweepExpired     SweepResult = "expired"
	SweepPending     SweepResult = "pending"
	SweepUnavailable SweepResult = "unavailable"
)

// ReconcileService merges the three completion signals (provider
// notification, client status query, periodic sweep) into one order state.
// All three funnel into OrderRepo.MarkPaid, whose CAS decides which caller
// creates the payment.
type ReconcileService interface {
	HandleNotification(ctx context.Context, params url.Values) (NotifyOutcome, error)
	HandleStatusQuery(ctx context.Context, outTradeNo, tradeNo string) (StatusView, error)
	ReconcileOrder(ctx context.Context, order domain.Order) (SweepResult, error)
}

type reconcileService struct {
	orderRepo repo.OrderRepo
	gateway   payment.Gateway
	publisher events.Publisher
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	orderTTL  time.Duration
	now       func() time.Time
}

func NewReconcileService(
	orderRepo repo.OrderRepo,
	gateway payment.Gateway,
	publisher events.Publisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
	orderTTL time.Duration,
) ReconcileService {
	if publisher == nil {
		publisher = events.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reconcileService{
		orderRepo: orderRepo,
		gateway:   gateway,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		orderTTL:  orderTTL,
		now:       time.Now,
	}
}

func (s *reconcileService) HandleNotification(ctx context.Context, params url.Values) (NotifyOutcome, error) {
	if !s.gateway.VerifyNotification(params) {
		s.metrics.Notification("signature_invalid")
		s.logger.Warn("Rejected payment notification with invalid signature")
		return "", apperr.ErrSignatureInvalid
	}

	n, err := payment.ParseNotification(params)
	if err != nil {
		s.metrics.Notification("invalid")
		return "", err
	}

	log := s.logger.With(
		zap.String("order_id", n.OutTradeNo.String()),
		zap.String("trade_no", n.TradeNo),
		zap.String("trade_status", string(n.TradeStatus)),
	)

	if !n.TradeStatus.Paid() {
		s.metrics.Notification("ignored")
		log.Info("Acknowledged non-final payment notification")
		return NotifyIgnored, nil
	}

	order, err := s.orderRepo.FindById(ctx, n.OutTradeNo)
	if err != nil {
		s.metrics.Notification(apperr.Kind(err))
		return "", err
	}

	_, created, err := s.markPaid(ctx, order, domain.PaymentDetails{
		TransactionID: n.TradeNo,
		Amount:        decimal.NullDecimal{Decimal: n.TotalAmount, Valid: n.HasAmount},
	}, domain.SourceWebhook)
	if err != nil {
		s.metrics.Notification(apperr.Kind(err))
		log.Error("Failed to apply payment notification", zap.Error(err))
		return "", err
	}
	if !created {
		s.metrics.Notification("duplicate")
		log.Info("Duplicate payment notification acknowledged")
		return NotifyDuplicate, nil
	}
	s.metrics.Notification("applied")
	return NotifyApplied, nil
}

func (s *reconcileService) HandleStatusQuery(ctx context.Context, outTradeNo, tradeNo string) (StatusView, error) {
	id, err := uuid.Parse(outTradeNo)
	if err != nil {
		return StatusView{}, apperr.Invalid("out_trade_no", "not an order id")
	}

	order, err := s.orderRepo.FindById(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	// PAID, CANCELLED and REFUNDED cannot become PENDING again, so the stored
	// state already is the answer.
	if order.Status != domain.OrderPending {
		return viewOf(order, ""), nil
	}

	res, err := s.gateway.QueryStatus(ctx, order.ID.String(), tradeNo)
	if errors.Is(err, apperr.ErrGatewayUnavailable) {
		s.logger.Warn("Payment status unknown, provider unavailable",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return s.unknownView(ctx, order.ID)
	}
	if err != nil {
		return StatusView{}, err
	}

	switch {
	case res.TradeStatus.Paid():
		paid, _, err := s.markPaid(ctx, order, queriedPayment(res), domain.SourceQuery)
		if err != nil {
			return StatusView{}, err
		}
		return viewOf(paid, res.TradeStatus), nil

	case res.TradeStatus == domain.TradeClosed:
		v := viewOf(order, res.TradeStatus)
		v.Status = ClientFailed
		return v, nil

	default:
		return viewOf(order, res.TradeStatus), nil
	}
}

// unknownView answers when the provider could not be reached. A notification
// may have settled the order in the meantime, in which case that wins.
func (s *reconcileService) unknownView(ctx context.Context, id uuid.UUID) (StatusView, error) {
	order, err := s.orderRepo.FindById(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	if order.Status != domain.OrderPending {
		return viewOf(order, ""), nil
	}
	return StatusView{OrderID: id, Status: ClientUnknown, Retryable: true}, nil
}

func (s *reconcileService) ReconcileOrder(ctx context.Context, order domain.Order) (SweepResult, error) {
	res, err := s.gateway.QueryStatus(ctx, order.ID.String(), "")
	if errors.Is(err, apperr.ErrGatewayUnavailable) {
		return SweepUnavailable, nil
	}
	if err != nil {
		return "", err
	}

	switch {
	case res.TradeStatus.Paid():
		_, created, err := s.markPaid(ctx, &order, queriedPayment(res), domain.SourceSweep)
		if err != nil {
			return "", err
		}
		if created {
			s.logger.Warn("Sweep found a paid order the notification never settled",
				zap.String("order_id", order.ID.String()), zap.String("trade_no", res.TradeNo))
			return SweepPaid, nil
		}
		return SweepAlreadyPaid, nil

	case res.TradeStatus == domain.TradeClosed:
		if err := s.cancel(ctx, order.ID, res.TradeNo); err != nil {
			return "", err
		}
		return SweepCancelled, nil

	case res.TradeStatus == domain.TradeNotExist && s.orderTTL > 0 && s.now().Sub(order.CreatedAt) > s.orderTTL:
		if err := s.cancel(ctx, order.ID, ""); err != nil {
			return "", err
		}
		return SweepExpired, nil

	default:
		return SweepPending, nil
	}
}

// markPaid is the single funnel for PENDING -> PAID. Every signal that reports
// an amount must report the order's amount, whichever path it arrives on.
func (s *reconcileService) markPaid(ctx context.Context, order *domain.Order, details domain.PaymentDetails, source domain.TransitionSource) (*domain.Order, bool, error) {
	log := s.logger.With(
		zap.String("order_id", order.ID.String()),
		zap.String("trade_no", details.TransactionID),
		zap.String("source", string(source)),
	)

	if details.Amount.Valid && !details.Amount.Decimal.Equal(order.Amount) {
		log.Error("Provider amount does not match order",
			zap.String("reported", details.Amount.Decimal.StringFixed(2)),
			zap.String("expected", order.Amount.StringFixed(2)),
		)
		return nil, false, fmt.Errorf("order %s: provider reported %s, expected %s: %w",
			order.ID, details.Amount.Decimal.StringFixed(2), order.Amount.StringFixed(2), apperr.ErrAmountMismatch)
	}

	details.Method = s.gateway.Name()
	paid, created, err := s.orderRepo.MarkPaid(ctx, order.ID, details, source)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.metrics.Transition(string(domain.OrderPaid), string(source))
		s.publisher.Publish(ctx, events.NewOrderEvent(paid, source, details.TransactionID))
		log.Info("Order paid")
	}
	return paid, created, nil
}

// queriedPayment treats a zero total as not reported.
func queriedPayment(res domain.TradeQueryResult) domain.PaymentDetails {
	return domain.PaymentDetails{
		TransactionID: res.TradeNo,
		Amount:        decimal.NullDecimal{Decimal: res.TotalAmount, Valid: !res.TotalAmount.IsZero()},
	}
}

func (s *reconcileService) cancel(ctx context.Context, id uuid.UUID, tradeNo string) error {
	order, applied, err := s.orderRepo.Transition(ctx, id, domain.OrderPending, domain.OrderCancelled, domain.SourceSweep, tradeNo)
	if err != nil {
		return err
	}
	if applied {
		s.metrics.Transition(string(domain.OrderCancelled), string(domain.SourceSweep))
		s.publisher.Publish(ctx, events.NewOrderEvent(order, domain.SourceSweep, tradeNo))
		s.logger.Info("Order cancelled", zap.String("order_id", id.String()))
	}
	return nil
}

func viewOf(order *domain.Order, trade domain.TradeStatus) StatusView {
	v := StatusView{OrderID: order.ID, TradeStatus: trade}
	switch order.Status {
	case domain.OrderPaid:
		v.Status = ClientSuccess
	case domain.OrderCancelled:
		v.Status = ClientFailed
	case domain.OrderRefunded:
		v.Status = ClientRefunded
	default:
		v.Status = ClientPending
	}
	return v
}
