//go:build integration

// Package containers wraps testcontainers for integration suites.
package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Schema is the engine's full DDL, applied to fresh containers.
const Schema = `
CREATE TABLE IF NOT EXISTS sequence_counters (
	org_id        TEXT NOT NULL,
	record_type   TEXT NOT NULL,
	current_value BIGINT NOT NULL DEFAULT 0,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (org_id, record_type)
);

CREATE TABLE IF NOT EXISTS record_sequences (
	record_type    TEXT NOT NULL,
	record_id      TEXT NOT NULL,
	sequence_value BIGINT NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (record_type, record_id)
);

CREATE TABLE IF NOT EXISTS code_set_entries (
	payer                  TEXT NOT NULL,
	program                TEXT NOT NULL,
	procedure_code         TEXT NOT NULL,
	valid_modifiers        TEXT NOT NULL DEFAULT '',
	effective_start        TIMESTAMPTZ NOT NULL,
	effective_end          TIMESTAMPTZ,
	requires_authorization BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (payer, program, procedure_code)
);

CREATE TABLE IF NOT EXISTS submission_transactions (
	id            TEXT PRIMARY KEY,
	org_id        TEXT NOT NULL,
	record_type   TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	sequence_id   BIGINT NOT NULL,
	status        TEXT NOT NULL,
	priority      TEXT NOT NULL,
	attempts      INT NOT NULL DEFAULT 0,
	max_attempts  INT NOT NULL,
	next_retry_at TIMESTAMPTZ,
	last_error    TEXT,
	external_id   TEXT,
	http_status   INT NOT NULL DEFAULT 0,
	request       JSONB NOT NULL,
	response      JSONB,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submission_transactions_due
	ON submission_transactions (status, next_retry_at);
CREATE INDEX IF NOT EXISTS idx_submission_transactions_record
	ON submission_transactions (record_type, record_id);

CREATE TABLE IF NOT EXISTS audit_outbox (
	id             TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	published_at   TIMESTAMPTZ
);
`

// PostgresContainer wraps a testcontainers PostgreSQL instance with the
// schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
	URL       string
}

// NewPostgresContainer starts a PostgreSQL container and applies the
// schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("evv_test"),
		tcpostgres.WithUsername("evv"),
		tcpostgres.WithPassword("evv"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})
	return &PostgresContainer{Container: container, DB: db, URL: url}
}

// Truncate empties the given tables between tests.
func (p *PostgresContainer) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
			return err
		}
	}
	return nil
}
