package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"stampgate/internal/stamping/models"
	id "stampgate/pkg/domain"
	"stampgate/pkg/platform/sentinel"
)

// PostgresStore persists stamps. The partial unique index on live stamps is
// what makes Create's at-most-one-per-IRN check atomic.
//
// Schema:
//
//	CREATE TABLE stamps (
//	    csid           UUID PRIMARY KEY,
//	    irn_value      TEXT NOT NULL,
//	    algorithm      TEXT NOT NULL,
//	    digest         TEXT NOT NULL,
//	    signature      BYTEA NOT NULL,
//	    certificate_id UUID NOT NULL,
//	    issued_at      TIMESTAMPTZ NOT NULL,
//	    qr_payload     TEXT NOT NULL,
//	    invalidated    BOOLEAN NOT NULL DEFAULT FALSE
//	);
//	CREATE UNIQUE INDEX stamps_live_irn ON stamps (irn_value) WHERE NOT invalidated;
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, stamp models.CryptographicStamp) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stamps (csid, irn_value, algorithm, digest, signature, certificate_id, issued_at, qr_payload, invalidated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)`,
		uuid.UUID(stamp.CSID), stamp.IRNValue, stamp.Algorithm, stamp.Digest, stamp.Signature,
		uuid.UUID(stamp.CertificateID), stamp.IssuedAt, stamp.QRPayload,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert stamp: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLiveByIRN(ctx context.Context, irnValue string) (models.CryptographicStamp, error) {
	return scanStamp(s.db.QueryRowContext(ctx, selectStamp+` WHERE irn_value = $1 AND NOT invalidated`, irnValue))
}

func (s *PostgresStore) GetByCSID(ctx context.Context, csid id.StampID) (models.CryptographicStamp, error) {
	return scanStamp(s.db.QueryRowContext(ctx, selectStamp+` WHERE csid = $1`, uuid.UUID(csid)))
}

func (s *PostgresStore) Invalidate(ctx context.Context, csid id.StampID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE stamps SET invalidated = TRUE WHERE csid = $1`, uuid.UUID(csid))
	if err != nil {
		return fmt.Errorf("invalidate stamp: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("invalidate stamp rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stamps WHERE NOT invalidated`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count stamps: %w", err)
	}
	return count, nil
}

const selectStamp = `
	SELECT csid, irn_value, algorithm, digest, signature, certificate_id, issued_at, qr_payload, invalidated
	FROM stamps`

func scanStamp(row *sql.Row) (models.CryptographicStamp, error) {
	var stamp models.CryptographicStamp
	var csid, certID uuid.UUID

	err := row.Scan(&csid, &stamp.IRNValue, &stamp.Algorithm, &stamp.Digest, &stamp.Signature,
		&certID, &stamp.IssuedAt, &stamp.QRPayload, &stamp.Invalidated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CryptographicStamp{}, sentinel.ErrNotFound
		}
		return models.CryptographicStamp{}, fmt.Errorf("scan stamp: %w", err)
	}
	stamp.CSID = id.StampID(csid)
	stamp.CertificateID = id.CertificateID(certID)
	return stamp, nil
}
