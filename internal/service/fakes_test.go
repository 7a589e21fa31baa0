package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memOrders is an in-memory OrderRepo with the same CAS semantics as the
// Postgres one: one mutex stands in for the row lock.
type memOrders struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*domain.Order
	payments    map[uuid.UUID]*domain.Payment
	transitions []domain.OrderTransition
}

func newMemOrders() *memOrders {
	return &memOrders{
		orders:   map[uuid.UUID]*domain.Order{},
		payments: map[uuid.UUID]*domain.Payment{},
	}
}

func (m *memOrders) seed(payerID, projectID uuid.UUID, amount string, status domain.OrderStatus, createdAt time.Time) *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := &domain.Order{
		ID:        uuid.New(),
		PayerID:   payerID,
		ProjectID: projectID,
		Amount:    decimal.RequireFromString(amount),
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	m.orders[o.ID] = o
	cp := *o
	return &cp
}

func (m *memOrders) paymentCount(orderID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[orderID]; ok {
		return 1
	}
	return 0
}

func (m *memOrders) status(orderID uuid.UUID) domain.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID].Status
}

func (m *memOrders) copyOf(o *domain.Order) *domain.Order {
	cp := *o
	if p, ok := m.payments[o.ID]; ok {
		pc := *p
		cp.Payment = &pc
	}
	return &cp
}

func (m *memOrders) FindById(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	return m.copyOf(o), nil
}

func (m *memOrders) FindForPayer(ctx context.Context, id, payerID uuid.UUID) (*domain.Order, error) {
	o, err := m.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.PayerID != payerID {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	return o, nil
}

func (m *memOrders) ListByPayer(_ context.Context, payerID uuid.UUID) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.PayerID == payerID {
			out = append(out, *m.copyOf(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memOrders) LatestForPayerProject(ctx context.Context, payerID, projectID uuid.UUID) (*domain.Order, error) {
	orders, _ := m.ListByPayer(ctx, payerID)
	for _, o := range orders {
		if o.ProjectID == projectID {
			return &o, nil
		}
	}
	return nil, fmt.Errorf("order for project %s: %w", projectID, apperr.ErrNotFound)
}

func (m *memOrders) GetOrCreatePending(_ context.Context, payerID, projectID uuid.UUID, amount decimal.Decimal) (*domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PayerID == payerID && o.ProjectID == projectID && o.Status == domain.OrderPending {
			return m.copyOf(o), false, nil
		}
	}
	now := time.Now()
	o := &domain.Order{
		ID:        uuid.New(),
		PayerID:   payerID,
		ProjectID: projectID,
		Amount:    amount,
		Status:    domain.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.orders[o.ID] = o
	m.record(o.ID, "", domain.OrderPending, domain.SourceCreate, "")
	return m.copyOf(o), true, nil
}

func (m *memOrders) MarkPaid(_ context.Context, id uuid.UUID, details domain.PaymentDetails, source domain.TransitionSource) (*domain.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, false, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	switch o.Status {
	case domain.OrderPaid:
		return m.copyOf(o), false, nil
	case domain.OrderPending:
	default:
		return m.copyOf(o), false, apperr.Conflict(id, o.Status, domain.OrderPaid)
	}
	o.Status = domain.OrderPaid
	o.UpdatedAt = time.Now()
	m.payments[id] = &domain.Payment{
		ID:            uuid.New(),
		OrderID:       id,
		Amount:        o.Amount,
		Method:        details.Method,
		TransactionID: details.TransactionID,
		Status:        domain.PaymentSucceeded,
		CreatedAt:     o.UpdatedAt,
	}
	m.record(id, domain.OrderPending, domain.OrderPaid, source, details.TransactionID)
	return m.copyOf(o), true, nil
}

func (m *memOrders) Transition(_ context.Context, id uuid.UUID, from, to domain.OrderStatus, source domain.TransitionSource, reference string) (*domain.Order, bool, error) {
	if to == domain.OrderPaid || !domain.CanTransition(from, to) {
		return nil, false, apperr.Conflict(id, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, false, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	if o.Status != from {
		if o.Status == to {
			return m.copyOf(o), false, nil
		}
		return m.copyOf(o), false, apperr.Conflict(id, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	m.record(id, from, to, source, reference)
	return m.copyOf(o), true, nil
}

func (m *memOrders) FindStuckOrders(_ context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []domain.Order
	for _, o := range m.orders {
		if o.Status == domain.OrderPending && o.UpdatedAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) History(_ context.Context, id uuid.UUID) ([]domain.OrderTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OrderTransition
	for _, t := range m.transitions {
		if t.OrderID == id {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memOrders) record(id uuid.UUID, from, to domain.OrderStatus, source domain.TransitionSource, reference string) {
	m.transitions = append(m.transitions, domain.OrderTransition{
		ID:        int64(len(m.transitions) + 1),
		OrderID:   id,
		From:      from,
		To:        to,
		Source:    source,
		Reference: reference,
		CreatedAt: time.Now(),
	})
}

type memProjects struct {
	projects map[uuid.UUID]*domain.Project
}

func newMemProjects(projects ...domain.Project) *memProjects {
	m := &memProjects{projects: map[uuid.UUID]*domain.Project{}}
	for i := range projects {
		p := projects[i]
		m.projects[p.ID] = &p
	}
	return m
}

func (m *memProjects) FindByID(_ context.Context, id uuid.UUID) (*domain.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, apperr.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memProjects) Save(_ context.Context, p *domain.Project) error {
	cp := *p
	m.projects[p.ID] = &cp
	return nil
}
