package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// SourceRepository reads source metadata and full document text. Full text
// lives in postgres rather than the vector store: structured documents are
// indexed by summary but expanded from their complete content.
type SourceRepository struct {
	db *sql.DB
}

func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SourceRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	is_structured BOOLEAN NOT NULL DEFAULT FALSE,
	full_text TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sources_owner_id ON sources(owner_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SourceRepository) LoadFullText(ctx context.Context, sourceID string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT full_text
FROM sources
WHERE id = $1
`, sourceID)

	var fullText string
	if err := row.Scan(&fullText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrSourceNotFound, "load full text", fmt.Errorf("source %s", sourceID))
		}
		return "", fmt.Errorf("scan full text: %w", err)
	}
	return fullText, nil
}

func (r *SourceRepository) GetSourceLabel(ctx context.Context, sourceID string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT filename
FROM sources
WHERE id = $1
`, sourceID)

	var filename string
	if err := row.Scan(&filename); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrSourceNotFound, "get source label", fmt.Errorf("source %s", sourceID))
		}
		return "", fmt.Errorf("scan source label: %w", err)
	}
	return filename, nil
}
