//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers Postgres instance with the service
// schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// schema matches the DDL documented on each Postgres store.
const schema = `
CREATE TABLE IF NOT EXISTS reference_records (
    content_hash      TEXT PRIMARY KEY,
    value             TEXT NOT NULL UNIQUE,
    verification_code TEXT NOT NULL,
    source_invoice_id TEXT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS irn_sequence (
    id   INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    next BIGINT NOT NULL
);
INSERT INTO irn_sequence (id, next) VALUES (1, 1) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS certificates (
    id            UUID PRIMARY KEY,
    common_name   TEXT NOT NULL,
    organization  TEXT NOT NULL,
    country       TEXT NOT NULL,
    public_key    BYTEA NOT NULL,
    key_algorithm TEXT NOT NULL,
    key_size      INT NOT NULL,
    status        TEXT NOT NULL,
    issued_at     TIMESTAMPTZ,
    expires_at    TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    history       JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS active_certificate (
    id             INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    certificate_id UUID REFERENCES certificates (id)
);
INSERT INTO active_certificate (id, certificate_id) VALUES (1, NULL) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS stamps (
    csid           UUID PRIMARY KEY,
    irn_value      TEXT NOT NULL,
    algorithm      TEXT NOT NULL,
    digest         TEXT NOT NULL,
    signature      BYTEA NOT NULL,
    certificate_id UUID NOT NULL,
    issued_at      TIMESTAMPTZ NOT NULL,
    qr_payload     TEXT NOT NULL,
    invalidated    BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE UNIQUE INDEX IF NOT EXISTS stamps_live_irn ON stamps (irn_value) WHERE NOT invalidated;

CREATE TABLE IF NOT EXISTS transmission_records (
    id              UUID PRIMARY KEY,
    irn_value       TEXT NOT NULL,
    stamp_csid      UUID NOT NULL,
    status          TEXT NOT NULL,
    attempt_count   INT NOT NULL DEFAULT 0,
    max_retries     INT NOT NULL,
    next_attempt_at TIMESTAMPTZ,
    backoff_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    last_error      TEXT NOT NULL DEFAULT '',
    forced          BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transmission_records_irn ON transmission_records (irn_value, created_at DESC);
CREATE INDEX IF NOT EXISTS transmission_records_status ON transmission_records (status);

CREATE TABLE IF NOT EXISTS transmission_attempts (
    record_id    UUID NOT NULL REFERENCES transmission_records (id),
    number       INT NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL,
    outcome      TEXT NOT NULL,
    error        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS transmission_attempts_completed ON transmission_attempts (completed_at);
`

// NewPostgresContainer starts a new Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("stampgate_test"),
		tcpostgres.WithUsername("stampgate"),
		tcpostgres.WithPassword("stampgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// TruncateTables empties the given tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", ")))
	return err
}
