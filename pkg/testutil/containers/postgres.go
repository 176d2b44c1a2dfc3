//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema mirrors the column lists the postgres stores read and write.
const schema = `
CREATE TABLE IF NOT EXISTS encumbrances (
	id UUID PRIMARY KEY,
	human_readable_id TEXT NOT NULL,
	parcel_id UUID NOT NULL,
	lender_name TEXT NOT NULL,
	lender_contact TEXT NOT NULL DEFAULT '',
	borrower_id UUID NOT NULL,
	loan_amount DOUBLE PRECISION NOT NULL,
	interest_rate DOUBLE PRECISION NOT NULL,
	duration_months INT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	maturity_date TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	priority INT NOT NULL,
	anchor_ref TEXT NOT NULL DEFAULT '',
	registered_by UUID NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL,
	discharged_at TIMESTAMPTZ,
	notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_encumbrances_parcel ON encumbrances (parcel_id);
CREATE INDEX IF NOT EXISTS idx_encumbrances_borrower ON encumbrances (borrower_id);

CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	human_readable_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	storage_path TEXT NOT NULL,
	document_type TEXT NOT NULL,
	related_entity_type TEXT NOT NULL DEFAULT '',
	related_entity_id TEXT NOT NULL DEFAULT '',
	uploaded_by UUID NOT NULL,
	content_hash TEXT NOT NULL,
	anchor_ref TEXT NOT NULL DEFAULT '',
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	verified_by UUID,
	verified_at TIMESTAMPTZ,
	ocr_text TEXT NOT NULL DEFAULT '',
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_uploader ON documents (uploaded_by);

CREATE TABLE IF NOT EXISTS notifications (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	data JSONB,
	channels TEXT[] NOT NULL,
	read BOOLEAN NOT NULL DEFAULT FALSE,
	sent_at TIMESTAMPTZ NOT NULL,
	read_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id);

CREATE TABLE IF NOT EXISTS notification_settings (
	user_id UUID PRIMARY KEY,
	sms_enabled BOOLEAN NOT NULL,
	email_enabled BOOLEAN NOT NULL,
	push_enabled BOOLEAN NOT NULL,
	application_updates BOOLEAN NOT NULL,
	payment_updates BOOLEAN NOT NULL,
	survey_updates BOOLEAN NOT NULL,
	title_updates BOOLEAN NOT NULL,
	mortgage_updates BOOLEAN NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
	id UUID PRIMARY KEY,
	category TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	user_id UUID,
	subject TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	decision TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT '',
	actor_id TEXT NOT NULL DEFAULT '',
	client_ip TEXT NOT NULL DEFAULT '',
	platform TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_events_user ON audit_events (user_id);
`

// PostgresContainer wraps a testcontainers Postgres instance with the
// registry schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("cadastra_test"),
		tcpostgres.WithUsername("cadastra"),
		tcpostgres.WithPassword("cadastra"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, DB: db}
}

// TruncateTables clears all registry tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context) error {
	tables := []string{"encumbrances", "documents", "notifications", "notification_settings", "audit_events"}
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}
