package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stampgate/internal/reference/models"
	"stampgate/pkg/platform/sentinel"
	txcontext "stampgate/pkg/platform/tx"
)

// PostgresIndex persists the duplicate index. The unique constraint on
// content_hash plus ON CONFLICT DO NOTHING makes the check-and-insert a
// single atomic statement.
//
// Schema:
//
//	CREATE TABLE reference_records (
//	    content_hash      TEXT PRIMARY KEY,
//	    value             TEXT NOT NULL UNIQUE,
//	    verification_code TEXT NOT NULL,
//	    source_invoice_id TEXT NOT NULL,
//	    created_at        TIMESTAMPTZ NOT NULL
//	);
type PostgresIndex struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresIndex) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresIndex) PutIfAbsent(ctx context.Context, record models.ReferenceRecord) (models.ReferenceRecord, bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO reference_records (content_hash, value, verification_code, source_invoice_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_hash) DO NOTHING`,
		record.ContentHash, record.Value, record.VerificationCode, record.SourceInvoiceID, record.CreatedAt,
	)
	if err != nil {
		return models.ReferenceRecord{}, false, fmt.Errorf("dupindex insert: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return models.ReferenceRecord{}, false, fmt.Errorf("dupindex rows affected: %w", err)
	}
	if inserted == 1 {
		return record, true, nil
	}

	existing, err := s.Get(ctx, record.ContentHash)
	if err != nil {
		return models.ReferenceRecord{}, false, err
	}
	return existing, false, nil
}

func (s *PostgresIndex) Get(ctx context.Context, contentHash string) (models.ReferenceRecord, error) {
	var record models.ReferenceRecord
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT content_hash, value, verification_code, source_invoice_id, created_at
		FROM reference_records WHERE content_hash = $1`,
		contentHash,
	).Scan(&record.ContentHash, &record.Value, &record.VerificationCode, &record.SourceInvoiceID, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ReferenceRecord{}, sentinel.ErrNotFound
		}
		return models.ReferenceRecord{}, fmt.Errorf("dupindex get: %w", err)
	}
	return record, nil
}

func (s *PostgresIndex) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM reference_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("dupindex count: %w", err)
	}
	return count, nil
}
