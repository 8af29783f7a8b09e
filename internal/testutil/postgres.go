package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koopa0/dash/db"
)

// TestDB wraps a pgvector Postgres container with a ready connection
// pool. The dash schema is applied before it is returned.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts a pgvector Postgres container, applies the dash
// migrations, and registers cleanup on t.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	tdb, cleanup, err := SetupTestDBForMain()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cleanup)
	return tdb
}

// SetupTestDBForMain is the TestMain variant: one container shared by
// a whole package's integration tests. The caller must run cleanup.
func SetupTestDBForMain() (*TestDB, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("dash_test"),
		postgres.WithUsername("dash_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("starting postgres container: %w", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("getting connection string: %w", err)
	}

	if err := db.Migrate(connStr); err != nil {
		terminate()
		return nil, nil, fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		terminate()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	tdb := &TestDB{Container: container, Pool: pool, ConnStr: connStr}
	cleanup := func() {
		pool.Close()
		terminate()
	}
	return tdb, cleanup, nil
}

// CleanSpaces truncates both knowledge spaces for test isolation.
func CleanSpaces(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE dash_knowledge, dash_learnings`)
	if err != nil {
		t.Fatalf("truncating knowledge spaces: %v", err)
	}
}
