package service

import (
	"context"
	"errors"
	"fmt"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"
	"devmarket/internal/events"
	"devmarket/internal/infrastructure/payment"
	"devmarket/internal/repo"
	"devmarket/internal/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateOrder(ctx context.Context, payerID, projectID uuid.UUID) (*domain.Order, error)
	InitiatePayment(ctx context.Context, payerID, orderID uuid.UUID) (string, error)
	ListOrders(ctx context.Context, payerID uuid.UUID) ([]domain.Order, error)
	ProjectPaymentStatus(ctx context.Context, payerID, projectID uuid.UUID) (bool, error)
}

// URLs handed to the provider with every redirect.
type CallbackURLs struct {
	Return string
	Notify string
}

type orderService struct {
	orderRepo   repo.OrderRepo
	projectRepo repo.ProjectRepo
	paymentGtw  payment.Gateway
	publisher   events.Publisher
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	urls        CallbackURLs
}

func NewOrderService(
	orderRepo repo.OrderRepo,
	projectRepo repo.ProjectRepo,
	paymentGtw payment.Gateway,
	publisher events.Publisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
	urls CallbackURLs,
) OrderService {
	if publisher == nil {
		publisher = events.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orderService{
		orderRepo:   orderRepo,
		projectRepo: projectRepo,
		paymentGtw:  paymentGtw,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		urls:        urls,
	}
}

// CreateOrder returns the payer's open order for the project, creating one
// priced at the project budget when none is open.
func (s *orderService) CreateOrder(ctx context.Context, payerID, projectID uuid.UUID) (*domain.Order, error) {
	project, err := s.projectRepo.FindByID(ctx, projectID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Invalid("projectId", "project not found")
	}
	if err != nil {
		return nil, err
	}
	if !project.Budget.IsPositive() {
		return nil, apperr.Invalid("projectId", "project has no payable budget")
	}

	order, created, err := s.orderRepo.GetOrCreatePending(ctx, payerID, projectID, project.Budget)
	if err != nil {
		return nil, err
	}
	if created {
		s.metrics.Transition(string(domain.OrderPending), string(domain.SourceCreate))
		s.publisher.Publish(ctx, events.NewOrderEvent(order, domain.SourceCreate, ""))
		s.logger.Info("Order created",
			zap.String("order_id", order.ID.String()),
			zap.String("payer_id", payerID.String()),
			zap.String("project_id", projectID.String()),
			zap.String("amount", order.Amount.StringFixed(2)),
		)
	}
	return order, nil
}

// InitiatePayment builds the provider redirect for a PENDING order. It never
// changes order state; only a provider-confirmed signal does that.
func (s *orderService) InitiatePayment(ctx context.Context, payerID, orderID uuid.UUID) (string, error) {
	order, err := s.orderRepo.FindForPayer(ctx, orderID, payerID)
	if err != nil {
		return "", err
	}
	if order.Status != domain.OrderPending {
		return "", apperr.Invalid("orderId", fmt.Sprintf("order is %s and cannot be paid", order.Status))
	}

	subject := "Project " + order.ProjectID.String()
	if project, err := s.projectRepo.FindByID(ctx, order.ProjectID); err == nil && project.Title != "" {
		subject = project.Title
	}

	redirect, err := s.paymentGtw.BuildPaymentRedirect(ctx, payment.RedirectRequest{
		OrderID:   order.ID,
		Amount:    order.Amount,
		Subject:   subject,
		ReturnURL: s.urls.Return,
		NotifyURL: s.urls.Notify,
	})
	if err != nil {
		s.logger.Error("Failed to build payment redirect", zap.String("order_id", order.ID.String()), zap.Error(err))
		return "", err
	}
	return redirect, nil
}

func (s *orderService) ListOrders(ctx context.Context, payerID uuid.UUID) ([]domain.Order, error) {
	return s.orderRepo.ListByPayer(ctx, payerID)
}

// ProjectPaymentStatus reports whether the payer's latest order for the
// project is paid.
func (s *orderService) ProjectPaymentStatus(ctx context.Context, payerID, projectID uuid.UUID) (bool, error) {
	order, err := s.orderRepo.LatestForPayerProject(ctx, payerID, projectID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return order.Status == domain.OrderPaid, nil
}
