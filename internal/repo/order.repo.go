package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// OrderRepo is the only writer of order status. Every status change is a
// compare-and-set on the current status, recorded in order_transitions in the
// same transaction.
type OrderRepo interface {
	FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindForPayer(ctx context.Context, id, payerID uuid.UUID) (*domain.Order, error)
	ListByPayer(ctx context.Context, payerID uuid.UUID) ([]domain.Order, error)
	LatestForPayerProject(ctx context.Context, payerID, projectID uuid.UUID) (*domain.Order, error)
	GetOrCreatePending(ctx context.Context, payerID, projectID uuid.UUID, amount decimal.Decimal) (*domain.Order, bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, details domain.PaymentDetails, source domain.TransitionSource) (*domain.Order, bool, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, source domain.TransitionSource, reference string) (*domain.Order, bool, error)
	FindStuckOrders(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
	History(ctx context.Context, id uuid.UUID) ([]domain.OrderTransition, error)
}

type orderRepo struct {
	db       *sql.DB
	payments PaymentRepo
}

func NewOrderRepo(db *sql.DB, payments PaymentRepo) OrderRepo {
	return &orderRepo{db: db, payments: payments}
}

const (
	orderColumns = `id, payer_id, project_id, amount, status, created_at, updated_at`

	pendingUniqueIndex = "orders_one_pending_per_payer_project"

	// creation attempts before giving up on a pair whose PENDING order keeps
	// changing underneath us
	maxCreateAttempts = 3
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	if err := row.Scan(&o.ID, &o.PayerID, &o.ProjectID, &o.Amount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) FindForPayer(ctx context.Context, id, payerID uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND payer_id = $2`, id, payerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) ListByPayer(ctx context.Context, payerID uuid.UUID) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.payer_id, o.project_id, o.amount, o.status, o.created_at, o.updated_at,
		       p.id, p.amount, p.method, p.transaction_id, p.status, p.created_at
		FROM orders o
		LEFT JOIN payments p ON p.order_id = o.id
		WHERE o.payer_id = $1
		ORDER BY o.created_at DESC
	`, payerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var (
			o         domain.Order
			payID     uuid.NullUUID
			payAmount decimal.NullDecimal
			method    sql.NullString
			txnID     sql.NullString
			payStatus sql.NullString
			payAt     sql.NullTime
		)
		if err := rows.Scan(
			&o.ID, &o.PayerID, &o.ProjectID, &o.Amount, &o.Status, &o.CreatedAt, &o.UpdatedAt,
			&payID, &payAmount, &method, &txnID, &payStatus, &payAt,
		); err != nil {
			return nil, err
		}
		if payID.Valid {
			o.Payment = &domain.Payment{
				ID:            payID.UUID,
				OrderID:       o.ID,
				Amount:        payAmount.Decimal,
				Method:        method.String,
				TransactionID: txnID.String,
				Status:        domain.PaymentStatus(payStatus.String),
				CreatedAt:     payAt.Time,
			}
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *orderRepo) LatestForPayerProject(ctx context.Context, payerID, projectID uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE payer_id = $1 AND project_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, payerID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order for project %s: %w", projectID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) findPending(ctx context.Context, payerID, projectID uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE payer_id = $1 AND project_id = $2 AND status = 'PENDING'
	`, payerID, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	return order, err
}

// GetOrCreatePending returns the payer's PENDING order for the project, or
// creates one. Concurrent callers for the same pair collide on the partial
// unique index; the loser re-reads and returns the winner's order.
func (r *orderRepo) GetOrCreatePending(ctx context.Context, payerID, projectID uuid.UUID, amount decimal.Decimal) (*domain.Order, bool, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		existing, err := r.findPending(ctx, payerID, projectID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, false, err
		}

		now := time.Now().UTC()
		order := &domain.Order{
			ID:        uuid.New(),
			PayerID:   payerID,
			ProjectID: projectID,
			Amount:    amount,
			Status:    domain.OrderPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = r.insertOrder(ctx, order)
		if isUniqueViolation(err, pendingUniqueIndex) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return order, true, nil
	}
	return nil, false, fmt.Errorf("create pending order for payer %s project %s: %w",
		payerID, projectID, apperr.ErrStateConflict)
}

func (r *orderRepo) insertOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.PayerID, order.ProjectID, order.Amount, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := recordTransition(ctx, tx, order.ID, "", domain.OrderPending, domain.SourceCreate, ""); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkPaid moves a PENDING order to PAID and creates its Payment in one
// transaction. If the order is already PAID nothing is written and created is
// false. CANCELLED and REFUNDED orders yield ErrStateConflict.
func (r *orderRepo) MarkPaid(ctx context.Context, id uuid.UUID, details domain.PaymentDetails, source domain.TransitionSource) (*domain.Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders SET status = 'PAID', updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+orderColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return r.alreadyPaid(ctx, id)
	}
	if err != nil {
		return nil, false, fmt.Errorf("mark order %s paid: %w", id, err)
	}

	payment := &domain.Payment{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Amount:        order.Amount,
		Method:        details.Method,
		TransactionID: details.TransactionID,
		Status:        domain.PaymentSucceeded,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.payments.CreatePayment(ctx, tx, payment); err != nil {
		return nil, false, err
	}
	if err := recordTransition(ctx, tx, order.ID, domain.OrderPending, domain.OrderPaid, source, details.TransactionID); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit paid order %s: %w", id, err)
	}

	order.Payment = payment
	return order, true, nil
}

func (r *orderRepo) alreadyPaid(ctx context.Context, id uuid.UUID) (*domain.Order, bool, error) {
	current, err := r.FindById(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status != domain.OrderPaid {
		return current, false, apperr.Conflict(id, current.Status, domain.OrderPaid)
	}
	payment, err := r.payments.FindByOrderID(ctx, id)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}
	current.Payment = payment
	return current, false, nil
}

// Transition applies a CAS from one status to another. An order already at
// the target status is returned with applied=false and no error.
func (r *orderRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, source domain.TransitionSource, reference string) (*domain.Order, bool, error) {
	if to == domain.OrderPaid {
		return nil, false, fmt.Errorf("order %s: PAID requires a payment, use MarkPaid: %w", id, apperr.ErrStateConflict)
	}
	if !domain.CanTransition(from, to) {
		return nil, false, apperr.Conflict(id, from, to)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns, id, from, to))
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		current, err := r.FindById(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if current.Status == to {
			return current, false, nil
		}
		return current, false, apperr.Conflict(id, current.Status, to)
	}
	if err != nil {
		return nil, false, fmt.Errorf("transition order %s: %w", id, err)
	}

	if err := recordTransition(ctx, tx, id, from, to, source, reference); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return order, true, nil
}

func (r *orderRepo) FindStuckOrders(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'PENDING' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *orderRepo) History(ctx context.Context, id uuid.UUID) ([]domain.OrderTransition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, source, reference, created_at
		FROM order_transitions WHERE order_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderTransition
	for rows.Next() {
		var t domain.OrderTransition
		if err := rows.Scan(&t.ID, &t.OrderID, &t.From, &t.To, &t.Source, &t.Reference, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func recordTransition(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, from, to domain.OrderStatus, source domain.TransitionSource, reference string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_transitions (order_id, from_status, to_status, source, reference)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, from, to, source, reference)
	if err != nil {
		return fmt.Errorf("record transition for order %s: %w", orderID, err)
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}
