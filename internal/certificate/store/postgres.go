package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"stampgate/internal/certificate/models"
	id "stampgate/pkg/domain"
	"stampgate/pkg/platform/sentinel"
)

// PostgresStore persists certificates with a single-row current-active
// pointer table, so "the active certificate" is a read through the store
// rather than process state.
//
// Schema:
//
//	CREATE TABLE certificates (
//	    id            UUID PRIMARY KEY,
//	    common_name   TEXT NOT NULL,
//	    organization  TEXT NOT NULL,
//	    country       TEXT NOT NULL,
//	    public_key    BYTEA,
//	    key_algorithm TEXT NOT NULL,
//	    key_size      INT NOT NULL,
//	    status        TEXT NOT NULL,
//	    issued_at     TIMESTAMPTZ,
//	    expires_at    TIMESTAMPTZ,
//	    created_at    TIMESTAMPTZ NOT NULL,
//	    updated_at    TIMESTAMPTZ NOT NULL,
//	    history       JSONB NOT NULL DEFAULT '[]'
//	);
//	CREATE TABLE active_certificate (
//	    slot           BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (slot),
//	    certificate_id UUID NOT NULL REFERENCES certificates (id)
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, cert models.Certificate) error {
	history, err := json.Marshal(cert.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO certificates
			(id, common_name, organization, country, public_key, key_algorithm, key_size,
			 status, issued_at, expires_at, created_at, updated_at, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.UUID(cert.ID), cert.Subject.CommonName, cert.Subject.Organization, cert.Subject.Country,
		cert.PublicKey, cert.KeyAlgorithm, cert.KeySize, string(cert.Status),
		nullTime(cert.IssuedAt), nullTime(cert.ExpiresAt), cert.CreatedAt, cert.UpdatedAt, history,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, certID id.CertificateID) (models.Certificate, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectCertificate+` WHERE id = $1`, uuid.UUID(certID)))
}

func (s *PostgresStore) Update(ctx context.Context, cert models.Certificate) error {
	history, err := json.Marshal(cert.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE certificates
		SET status = $2, issued_at = $3, expires_at = $4, updated_at = $5, history = $6
		WHERE id = $1`,
		uuid.UUID(cert.ID), string(cert.Status), nullTime(cert.IssuedAt), nullTime(cert.ExpiresAt),
		cert.UpdatedAt, history,
	)
	if err != nil {
		return fmt.Errorf("update certificate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update certificate rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetActive(ctx context.Context) (models.Certificate, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectCertificate+`
		WHERE id = (SELECT certificate_id FROM active_certificate)`))
}

func (s *PostgresStore) SwapActive(ctx context.Context, newID id.CertificateID) (id.CertificateID, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return id.CertificateID{}, false, fmt.Errorf("begin swap active: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var previous uuid.UUID
	hadPrevious := true
	err = tx.QueryRowContext(ctx, `SELECT certificate_id FROM active_certificate FOR UPDATE`).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		hadPrevious = false
	} else if err != nil {
		return id.CertificateID{}, false, fmt.Errorf("read active pointer: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO active_certificate (slot, certificate_id) VALUES (TRUE, $1)
		ON CONFLICT (slot) DO UPDATE SET certificate_id = EXCLUDED.certificate_id`,
		uuid.UUID(newID),
	)
	if err != nil {
		return id.CertificateID{}, false, fmt.Errorf("swap active pointer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return id.CertificateID{}, false, fmt.Errorf("commit swap active: %w", err)
	}
	return id.CertificateID(previous), hadPrevious, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Certificate, error) {
	rows, err := s.db.QueryContext(ctx, selectCertificate+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var out []models.Certificate
	for rows.Next() {
		cert, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cert)
	}
	return out, rows.Err()
}

const selectCertificate = `
	SELECT id, common_name, organization, country, public_key, key_algorithm, key_size,
	       status, issued_at, expires_at, created_at, updated_at, history
	FROM certificates`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (models.Certificate, error) {
	cert, err := s.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Certificate{}, sentinel.ErrNotFound
		}
		return models.Certificate{}, err
	}
	return cert, nil
}

func (s *PostgresStore) scanRow(row rowScanner) (models.Certificate, error) {
	var cert models.Certificate
	var certID uuid.UUID
	var issuedAt, expiresAt sql.NullTime
	var history []byte

	err := row.Scan(&certID, &cert.Subject.CommonName, &cert.Subject.Organization, &cert.Subject.Country,
		&cert.PublicKey, &cert.KeyAlgorithm, &cert.KeySize, (*string)(&cert.Status),
		&issuedAt, &expiresAt, &cert.CreatedAt, &cert.UpdatedAt, &history)
	if err != nil {
		return models.Certificate{}, err
	}

	cert.ID = id.CertificateID(certID)
	if issuedAt.Valid {
		cert.IssuedAt = issuedAt.Time
	}
	if expiresAt.Valid {
		cert.ExpiresAt = expiresAt.Time
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &cert.History); err != nil {
			return models.Certificate{}, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return cert, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
