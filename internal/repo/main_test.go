package repo

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"devmarket/internal/database"
	"devmarket/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// testDB is nil when Docker is unavailable or -short is set; tests that need
// it skip themselves through requireDB.
var testDB *sql.DB

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if testing.Short() {
		return m.Run()
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("devmarket"),
		postgres.WithUsername("devmarket"),
		postgres.WithPassword("devmarket"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres container unavailable, skipping store tests: %v\n", err)
		return m.Run()
	}
	defer func() {
		_ = testcontainers.TerminateContainer(container)
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "connection string: %v\n", err)
		return 1
	}
	db, err := database.NewPostgres(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	testDB = db
	return m.Run()
}

func requireDB(t *testing.T) *sql.DB {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres not available")
	}
	return testDB
}

type fixture struct {
	orders   OrderRepo
	payments PaymentRepo
	projects ProjectRepo
	project  *domain.Project
	payer    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := requireDB(t)

	payments := NewPaymentRepo(db)
	f := &fixture{
		orders:   NewOrderRepo(db, payments),
		payments: payments,
		projects: NewProjectRepo(db),
		project: &domain.Project{
			ID:     uuid.New(),
			Title:  "Build a landing page",
			Budget: decimal.RequireFromString("100.00"),
		},
		payer: uuid.New(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.projects.Save(ctx, f.project); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return f
}
