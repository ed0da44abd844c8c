package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"stampgate/internal/transmission/models"
	id "stampgate/pkg/domain"
	"stampgate/pkg/platform/sentinel"
)

// PostgresLedger persists transmission records and their attempt history.
//
// Schema:
//
//	CREATE TABLE transmission_records (
//	    id              UUID PRIMARY KEY,
//	    irn_value       TEXT NOT NULL,
//	    stamp_csid      UUID NOT NULL,
//	    status          TEXT NOT NULL,
//	    attempt_count   INT NOT NULL DEFAULT 0,
//	    max_retries     INT NOT NULL,
//	    next_attempt_at TIMESTAMPTZ,
//	    backoff_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    last_error      TEXT NOT NULL DEFAULT '',
//	    forced          BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    updated_at      TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX transmission_records_irn ON transmission_records (irn_value, created_at DESC);
//	CREATE INDEX transmission_records_status ON transmission_records (status);
//
//	CREATE TABLE transmission_attempts (
//	    record_id    UUID NOT NULL REFERENCES transmission_records (id),
//	    number       INT NOT NULL,
//	    started_at   TIMESTAMPTZ NOT NULL,
//	    completed_at TIMESTAMPTZ NOT NULL,
//	    outcome      TEXT NOT NULL,
//	    error        TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX transmission_attempts_completed ON transmission_attempts (completed_at);
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) Create(ctx context.Context, record models.TransmissionRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO transmission_records
			(id, irn_value, stamp_csid, status, attempt_count, max_retries,
			 next_attempt_at, backoff_seconds, last_error, forced, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(record.ID), record.IRNValue, uuid.UUID(record.StampCSID), record.Status,
		record.AttemptCount, record.MaxRetries, nullTime(record.NextAttemptAt),
		record.BackoffSeconds, record.LastError, record.Forced, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert transmission record: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, recordID id.TransmissionID) (models.TransmissionRecord, error) {
	record, err := scanRecord(l.db.QueryRowContext(ctx, selectRecord+` WHERE id = $1`, uuid.UUID(recordID)))
	if err != nil {
		return models.TransmissionRecord{}, err
	}
	record.Attempts, err = l.attempts(ctx, recordID)
	if err != nil {
		return models.TransmissionRecord{}, err
	}
	return record, nil
}

func (l *PostgresLedger) GetByIRN(ctx context.Context, irnValue string) (models.TransmissionRecord, error) {
	record, err := scanRecord(l.db.QueryRowContext(ctx,
		selectRecord+` WHERE irn_value = $1 ORDER BY created_at DESC LIMIT 1`, irnValue))
	if err != nil {
		return models.TransmissionRecord{}, err
	}
	record.Attempts, err = l.attempts(ctx, record.ID)
	if err != nil {
		return models.TransmissionRecord{}, err
	}
	return record, nil
}

func (l *PostgresLedger) Update(ctx context.Context, record models.TransmissionRecord) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE transmission_records
		SET status = $2, attempt_count = $3, max_retries = $4, next_attempt_at = $5,
		    backoff_seconds = $6, last_error = $7, forced = $8, updated_at = $9
		WHERE id = $1`,
		uuid.UUID(record.ID), record.Status, record.AttemptCount, record.MaxRetries,
		nullTime(record.NextAttemptAt), record.BackoffSeconds, record.LastError,
		record.Forced, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update transmission record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transmission record rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (l *PostgresLedger) AppendAttempt(ctx context.Context, recordID id.TransmissionID, attempt models.Attempt) error {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO transmission_attempts (record_id, number, started_at, completed_at, outcome, error)
		SELECT id, $2, $3, $4, $5, $6 FROM transmission_records WHERE id = $1`,
		uuid.UUID(recordID), attempt.Number, attempt.StartedAt, attempt.CompletedAt,
		attempt.Outcome, attempt.Error,
	)
	if err != nil {
		return fmt.Errorf("insert transmission attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert transmission attempt rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (l *PostgresLedger) ListByStatus(ctx context.Context, status models.Status) ([]models.TransmissionRecord, error) {
	rows, err := l.db.QueryContext(ctx, selectRecord+` WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list transmission records: %w", err)
	}
	defer rows.Close()

	var records []models.TransmissionRecord
	for rows.Next() {
		record, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (l *PostgresLedger) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'succeeded'),
		       COUNT(*) FILTER (WHERE status = 'retrying'),
		       COUNT(*) FILTER (WHERE status = 'dead_lettered'),
		       COALESCE(SUM(attempt_count), 0)
		FROM transmission_records`,
	).Scan(&counts.Total, &counts.Succeeded, &counts.Retrying, &counts.DeadLettered, &counts.AttemptSum)
	if err != nil {
		return Counts{}, fmt.Errorf("count transmission records: %w", err)
	}
	return counts, nil
}

func (l *PostgresLedger) Timeline(ctx context.Context, start, end time.Time, interval time.Duration) ([]models.TimelineBucket, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT completed_at, outcome FROM transmission_attempts
		WHERE completed_at >= $1 AND completed_at < $2`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("query transmission attempts: %w", err)
	}
	defer rows.Close()

	buckets := makeBuckets(start, end, interval)
	for rows.Next() {
		var attempt models.Attempt
		if err := rows.Scan(&attempt.CompletedAt, &attempt.Outcome); err != nil {
			return nil, fmt.Errorf("scan transmission attempt: %w", err)
		}
		placeAttempt(buckets, start, interval, attempt)
	}
	return buckets, rows.Err()
}

func (l *PostgresLedger) attempts(ctx context.Context, recordID id.TransmissionID) ([]models.Attempt, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT number, started_at, completed_at, outcome, error
		FROM transmission_attempts WHERE record_id = $1 ORDER BY completed_at`,
		uuid.UUID(recordID),
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var attempt models.Attempt
		if err := rows.Scan(&attempt.Number, &attempt.StartedAt, &attempt.CompletedAt,
			&attempt.Outcome, &attempt.Error); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

const selectRecord = `
	SELECT id, irn_value, stamp_csid, status, attempt_count, max_retries,
	       next_attempt_at, backoff_seconds, last_error, forced, created_at, updated_at
	FROM transmission_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (models.TransmissionRecord, error) {
	record, err := scanInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TransmissionRecord{}, sentinel.ErrNotFound
		}
		return models.TransmissionRecord{}, err
	}
	return record, nil
}

func scanRecordRows(rows *sql.Rows) (models.TransmissionRecord, error) {
	return scanInto(rows)
}

func scanInto(row rowScanner) (models.TransmissionRecord, error) {
	var record models.TransmissionRecord
	var recordID, csid uuid.UUID
	var nextAttempt sql.NullTime

	err := row.Scan(&recordID, &record.IRNValue, &csid, &record.Status,
		&record.AttemptCount, &record.MaxRetries, &nextAttempt, &record.BackoffSeconds,
		&record.LastError, &record.Forced, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TransmissionRecord{}, err
		}
		return models.TransmissionRecord{}, fmt.Errorf("scan transmission record: %w", err)
	}
	record.ID = id.TransmissionID(recordID)
	record.StampCSID = id.StampID(csid)
	if nextAttempt.Valid {
		record.NextAttemptAt = nextAttempt.Time
	}
	return record, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
