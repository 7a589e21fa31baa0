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

// ProjectRepo is a read view over projects owned by the listings service.
// Save exists for seeding local databases and tests.
type ProjectRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	Save(ctx context.Context, p *domain.Project) error
}

type projectRepo struct {
	db *sql.DB
}

func NewProjectRepo(db *sql.DB) ProjectRepo {
	return &projectRepo{db: db}
}

func (r *projectRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	var p domain.Project
	err := r.db.QueryRowContext(ctx, `SELECT id, title, budget FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Title, &p.Budget)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *projectRepo) Save(ctx context.Context, p *domain.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (id, title, budget) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, budget = EXCLUDED.budget
	`, p.ID, p.Title, p.Budget)
	return err
}
