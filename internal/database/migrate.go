package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		budget NUMERIC(12,2) NOT NULL CHECK (budget > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		payer_id UUID NOT NULL,
		project_id UUID NOT NULL REFERENCES projects(id),
		amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
		status VARCHAR(16) NOT NULL CHECK (status IN ('PENDING', 'PAID', 'CANCELLED', 'REFUNDED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// At most one PENDING order per payer and project.
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_one_pending_per_payer_project
		ON orders (payer_id, project_id) WHERE status = 'PENDING'`,
	`CREATE INDEX IF NOT EXISTS orders_payer_created ON orders (payer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_pending_updated ON orders (updated_at) WHERE status = 'PENDING'`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL UNIQUE REFERENCES orders(id),
		amount NUMERIC(12,2) NOT NULL,
		method VARCHAR(32) NOT NULL,
		transaction_id VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL CHECK (status IN ('SUCCESS', 'FAILED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_transitions (
		id BIGSERIAL PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders(id),
		from_status VARCHAR(16) NOT NULL,
		to_status VARCHAR(16) NOT NULL,
		source VARCHAR(16) NOT NULL,
		reference VARCHAR(64) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS order_transitions_order ON order_transitions (order_id, id)`,
}

// Migrate creates the tables and indexes when they are missing. It is safe to
// run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
