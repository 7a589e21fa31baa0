package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"devmarket/internal/apperr"
	"devmarket/internal/domain"

	"github.com/google/uuid"
)

type PaymentRepo interface {
	// tx *sql.Tx -> the payment commits or rolls back with the order transition
	CreatePayment(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)
	CountByOrderID(ctx context.Context, orderID uuid.UUID) (int, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, order_id, amount, method, transaction_id, status, created_at`

func (r *paymentRepo) CreatePayment(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.ExecContext(
		ctx, query,
		payment.ID, payment.OrderID, payment.Amount, payment.Method,
		payment.TransactionID, payment.Status, payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment for order %s: %w", payment.OrderID, err)
	}
	return nil
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
	var p domain.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.TransactionID, &p.Status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment for order %s: %w", orderID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) CountByOrderID(ctx context.Context, orderID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM payments WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}
