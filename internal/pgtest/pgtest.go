//go:build integration

// Package pgtest starts a disposable Postgres container for integration tests.
package pgtest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vadimbarashkov/shortlink/internal/config"
	"github.com/vadimbarashkov/shortlink/pkg/postgres"
)

const image = "postgres:16-alpine"

// Start runs a Postgres container, applies the project migrations and
// returns a connection through the given driver. Everything is torn down
// when the test ends.
func Start(t testing.TB, driver string) *sqlx.DB {
	t.Helper()

	ctx := context.Background()

	pgUser := "test"
	pgPassword := "test"
	pgDB := "shortlink"

	pgCont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: image,
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDB,
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgCont.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate postgres container: %v", err)
		}
	})

	pgHost, err := pgCont.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	pgPort, err := pgCont.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := config.Postgres{
		User:     pgUser,
		Password: pgPassword,
		Host:     pgHost,
		Port:     pgPort.Int(),
		DB:       pgDB,
		SSLMode:  "disable",
	}

	if _, err := postgres.RunMigrations(migrationsSource(t), cfg.DSN()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		m, err := migrate.New(migrationsSource(t), cfg.DSN())
		if err != nil {
			t.Errorf("Failed to initialize migrations: %v", err)
			return
		}
		defer m.Close()

		if err := m.Down(); err != nil {
			t.Errorf("Failed to rollback migrations: %v", err)
		}
	})

	db, err := postgres.New(ctx, driver, cfg.DSN())
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})

	return db
}

// Truncate empties the records table between subtests.
func Truncate(t testing.TB, db *sqlx.DB) {
	t.Helper()

	if _, err := db.Exec(`TRUNCATE TABLE records RESTART IDENTITY`); err != nil {
		t.Fatalf("Failed to clean records table: %v", err)
	}
}

func migrationsSource(t testing.TB) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to locate migrations directory")
	}

	return "file://" + filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}
