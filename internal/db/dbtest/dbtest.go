// Package dbtest provisions a migrated Postgres database for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	internaldb "examintel/internal/db"
)

const postgresImage = "postgres:16-alpine"

// Open skips the test unless EXAMINTEL_INTEGRATION=1. It connects to
// EXAMINTEL_TEST_DSN when set and otherwise starts a throwaway container.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("EXAMINTEL_INTEGRATION") != "1" {
		t.Skip("set EXAMINTEL_INTEGRATION=1 to run integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := strings.TrimSpace(os.Getenv("EXAMINTEL_TEST_DSN"))
	if dsn == "" {
		container, err := postgres.Run(ctx, postgresImage,
			postgres.WithDatabase("examintel"),
			postgres.WithUsername("examintel"),
			postgres.WithPassword("examintel"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Fatalf("start postgres container: %v", err)
		}
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(container); err != nil {
				t.Logf("terminate postgres container: %v", err)
			}
		})

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("container dsn: %v", err)
		}
	}

	conn, err := internaldb.OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := internaldb.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return conn
}
