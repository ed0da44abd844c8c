// Package service implements the transmission engine: the per-document
// delivery state machine, bounded exponential backoff, the wake-up scheduler
// and operator retry/cancel controls. The ledger is the single source of
// truth for status; the engine is its only writer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	stampmodels "stampgate/internal/stamping/models"
	"stampgate/internal/transmission/client"
	"stampgate/internal/transmission/metrics"
	"stampgate/internal/transmission/models"
	"stampgate/internal/transmission/store"
	id "stampgate/pkg/domain"
	dErrors "stampgate/pkg/domain-errors"
	audit "stampgate/pkg/platform/audit"
	"stampgate/pkg/platform/sentinel"
)

// StampSource is the slice of the stamping service the engine needs: stamp
// lookup, the pre-flight check and the signed count for statistics.
type StampSource interface {
	GetByCSID(ctx context.Context, csid id.StampID) (stampmodels.CryptographicStamp, error)
	VerifyStored(ctx context.Context, stamp stampmodels.CryptographicStamp) (stampmodels.VerificationResult, error)
	SignedCount(ctx context.Context) (int64, error)
}

// AuditPublisher is the slice of the audit publisher this service needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// RetryOptions carries the operator's retry dialog. Force lifts the retry
// ceiling for exactly one additional attempt on a dead-lettered record.
type RetryOptions struct {
	MaxRetries        *int
	RetryDelaySeconds *int
	Force             bool
}

type Engine struct {
	ledger   store.Ledger
	stamps   StampSource
	endpoint client.Submitter

	backoff    BackoffPolicy
	maxRetries int
	scheduler  *Scheduler
	workers    *semaphore.Weighted

	// locks holds one mutex per record id so at most one attempt is in
	// flight per record. inflight maps a running attempt to its cancel.
	locks    sync.Map
	inflight sync.Map

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher
	now     func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) { e.auditor = publisher }
}

func WithBackoffPolicy(policy BackoffPolicy) Option {
	return func(e *Engine) { e.backoff = policy }
}

func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = n }
}

// WithWorkerLimit bounds scheduler-fired attempts running concurrently.
func WithWorkerLimit(n int64) Option {
	return func(e *Engine) { e.workers = semaphore.NewWeighted(n) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(ledger store.Ledger, stamps StampSource, endpoint client.Submitter, opts ...Option) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if stamps == nil {
		return nil, fmt.Errorf("stamp source is required")
	}
	if endpoint == nil {
		return nil, fmt.Errorf("endpoint client is required")
	}

	engine := &Engine{
		ledger:     ledger,
		stamps:     stamps,
		endpoint:   endpoint,
		backoff:    NewBackoffPolicy(2*time.Second, 5*time.Minute),
		maxRetries: 3,
		workers:    semaphore.NewWeighted(8),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	engine.scheduler = NewScheduler(engine.dispatch)
	return engine, nil
}

// Run drives the backoff scheduler until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.scheduler.Run(ctx)
}

// Enqueue admits a stamped document for delivery. The pre-flight runs the
// verification engine against the stored digest; an invalid stamp is
// dead-lettered immediately and never reaches the wire.
func (e *Engine) Enqueue(ctx context.Context, csid id.StampID) (models.TransmissionRecord, error) {
	stamp, err := e.stamps.GetByCSID(ctx, csid)
	if err != nil {
		return models.TransmissionRecord{}, err
	}

	verdict, err := e.stamps.VerifyStored(ctx, stamp)
	if err != nil {
		return models.TransmissionRecord{}, err
	}

	now := e.now().UTC()
	record := models.TransmissionRecord{
		ID:         id.NewTransmissionID(),
		IRNValue:   stamp.IRNValue,
		StampCSID:  csid,
		Status:     models.StatusCreated,
		MaxRetries: e.maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if !verdict.IsValid {
		record.Status = models.StatusDeadLettered
		record.LastError = "invalid_stamp: " + verdict.Reason
	} else {
		record.Status = models.StatusQueued
	}

	if err := e.ledger.Create(ctx, record); err != nil {
		return models.TransmissionRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "create transmission record failed")
	}

	if record.Status == models.StatusDeadLettered {
		e.observeDeadLetter(ctx, record)
		return record, nil
	}

	if e.metrics != nil {
		e.metrics.IncrementEnqueued()
	}
	e.scheduler.Schedule(now, record.ID)
	return record, nil
}

// Attempt performs one delivery try. At most one attempt runs per record id;
// a concurrent caller observes the lock and no-ops, returning the record as
// it stands. attemptCount increments exactly once per completed attempt;
// cancelled attempts do not count.
func (e *Engine) Attempt(ctx context.Context, recordID id.TransmissionID) (models.TransmissionRecord, error) {
	lock := e.lockFor(recordID)
	if !lock.TryLock() {
		return e.Get(ctx, recordID)
	}
	defer lock.Unlock()

	record, err := e.Get(ctx, recordID)
	if err != nil {
		return models.TransmissionRecord{}, err
	}
	if record.Status != models.StatusQueued && record.Status != models.StatusRetrying {
		// Absorbing states stay untouched; a stale wake-up is not an error.
		return record, nil
	}
	previous := record.Status

	// The stamp lookup happens before the transmitting transition: a failed
	// lookup must leave the record where it was, still reachable by retries.
	stamp, err := e.stamps.GetByCSID(ctx, record.StampCSID)
	if err != nil {
		return models.TransmissionRecord{}, err
	}

	record, err = e.transition(ctx, record, models.StatusTransmitting)
	if err != nil {
		return models.TransmissionRecord{}, err
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	e.inflight.Store(recordID, cancel)
	startedAt := e.now().UTC()

	submitErr := e.endpoint.Submit(attemptCtx, stamp)

	e.inflight.Delete(recordID)
	cancel()
	completedAt := e.now().UTC()

	switch {
	case submitErr == nil:
		return e.finishSuccess(ctx, record, startedAt, completedAt)
	case errors.Is(submitErr, context.Canceled) && ctx.Err() == nil:
		return e.finishCancelled(ctx, record, startedAt, completedAt)
	case ctx.Err() != nil:
		// Shutdown mid-attempt: put the record back without consuming a try.
		record.Status = previous
		record.UpdatedAt = completedAt
		_ = e.ledger.Update(context.WithoutCancel(ctx), record)
		return models.TransmissionRecord{}, ctx.Err()
	default:
		return e.finishFailure(ctx, record, submitErr, startedAt, completedAt)
	}
}

// RetryNow is the operator control: bypasses the backoff wait, optionally
// adjusts the ceiling, and with force grants a dead-lettered record one more
// attempt without rewriting its attempt count.
func (e *Engine) RetryNow(ctx context.Context, recordID id.TransmissionID, opts RetryOptions) (models.TransmissionRecord, error) {
	// The read-check-update runs under the record lock so it cannot
	// interleave with a running attempt; a stale write here could otherwise
	// pull a just-succeeded record back into retrying.
	lock := e.lockFor(recordID)
	if !lock.TryLock() {
		return models.TransmissionRecord{}, dErrors.New(dErrors.CodeConflict, "an attempt is already in flight")
	}

	record, scheduled, err := e.prepareRetry(ctx, recordID, opts)
	lock.Unlock()
	if err != nil || scheduled {
		return record, err
	}
	return e.Attempt(ctx, recordID)
}

// prepareRetry validates and rewrites the record for an operator retry; the
// caller holds the record lock. It reports whether the retry was scheduled
// for later instead of being due inline.
func (e *Engine) prepareRetry(ctx context.Context, recordID id.TransmissionID, opts RetryOptions) (models.TransmissionRecord, bool, error) {
	record, err := e.Get(ctx, recordID)
	if err != nil {
		return models.TransmissionRecord{}, false, err
	}

	switch record.Status {
	case models.StatusSucceeded:
		return models.TransmissionRecord{}, false, dErrors.New(dErrors.CodeInvalidTransition, "record already succeeded")
	case models.StatusTransmitting:
		return models.TransmissionRecord{}, false, dErrors.New(dErrors.CodeConflict, "an attempt is already in flight")
	case models.StatusDeadLettered:
		if !opts.Force {
			return models.TransmissionRecord{}, false, dErrors.New(dErrors.CodeInvalidTransition, "record is dead-lettered; retry requires force")
		}
		record.Forced = true
		record, err = e.transition(ctx, record, models.StatusRetrying)
		if err != nil {
			return models.TransmissionRecord{}, false, err
		}
		e.emit(ctx, audit.EventTransmissionForced, record, nil)
	}

	if opts.MaxRetries != nil {
		record.MaxRetries = *opts.MaxRetries
	}

	if opts.RetryDelaySeconds != nil {
		delay := time.Duration(*opts.RetryDelaySeconds) * time.Second
		record.NextAttemptAt = e.now().UTC().Add(delay)
		record.BackoffSeconds = delay.Seconds()
		record.UpdatedAt = e.now().UTC()
		if err := e.ledger.Update(ctx, record); err != nil {
			return models.TransmissionRecord{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "update transmission record failed")
		}
		e.scheduler.Schedule(record.NextAttemptAt, record.ID)
		return record, true, nil
	}

	record.NextAttemptAt = time.Time{}
	record.UpdatedAt = e.now().UTC()
	if err := e.ledger.Update(ctx, record); err != nil {
		return models.TransmissionRecord{}, false, dErrors.Wrap(err, dErrors.CodeInternal, "update transmission record failed")
	}
	return record, false, nil
}

// Cancel aborts the in-flight attempt for a record. The cancelled attempt
// does not count against the ceiling; the record lands in retrying awaiting
// an operator retry.
func (e *Engine) Cancel(_ context.Context, recordID id.TransmissionID) error {
	cancel, ok := e.inflight.Load(recordID)
	if !ok {
		return dErrors.New(dErrors.CodeConflict, "no attempt in flight for record")
	}
	cancel.(context.CancelFunc)()
	return nil
}

// Get reads one record with its attempt history from the ledger.
func (e *Engine) Get(ctx context.Context, recordID id.TransmissionID) (models.TransmissionRecord, error) {
	record, err := e.ledger.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.TransmissionRecord{}, dErrors.New(dErrors.CodeNotFound, "transmission record not found")
		}
		return models.TransmissionRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "read transmission record failed")
	}
	return record, nil
}

// Statistics aggregates the ledger for dashboards.
func (e *Engine) Statistics(ctx context.Context) (models.Stats, error) {
	counts, err := e.ledger.Counts(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "aggregate ledger failed")
	}
	signed, err := e.stamps.SignedCount(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "count stamps failed")
	}

	stats := models.Stats{
		RetryingCount: counts.Retrying,
		SignedCount:   signed,
		Total:         counts.Total,
	}
	if counts.Total > 0 {
		stats.SuccessRate = float64(counts.Succeeded) / float64(counts.Total)
		if avg := float64(counts.AttemptSum)/float64(counts.Total) - 1; avg > 0 {
			stats.AverageRetries = avg
		}
	}
	return stats, nil
}

// maxTimelineBuckets bounds a single timeline query; a year-wide range with a
// one-second interval would otherwise allocate tens of millions of buckets.
const maxTimelineBuckets = 10_000

// Timeline buckets finished attempts by outcome over [start, end).
func (e *Engine) Timeline(ctx context.Context, start, end time.Time, interval time.Duration) ([]models.TimelineBucket, error) {
	if interval <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "interval must be positive")
	}
	if !end.After(start) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "end must be after start")
	}
	if end.Sub(start)/interval > maxTimelineBuckets {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"range spans more than %d buckets; widen the interval or narrow the range", maxTimelineBuckets)
	}
	buckets, err := e.ledger.Timeline(ctx, start, end, interval)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query timeline failed")
	}
	return buckets, nil
}

func (e *Engine) finishSuccess(ctx context.Context, record models.TransmissionRecord, startedAt, completedAt time.Time) (models.TransmissionRecord, error) {
	record.AttemptCount++
	record.Forced = false
	record.NextAttemptAt = time.Time{}
	record.BackoffSeconds = 0
	record.LastError = ""

	record, err := e.transition(ctx, record, models.StatusSucceeded)
	if err != nil {
		return models.TransmissionRecord{}, err
	}
	e.appendAttempt(ctx, record.ID, models.Attempt{
		Number: record.AttemptCount, StartedAt: startedAt, CompletedAt: completedAt,
		Outcome: models.OutcomeSucceeded,
	})

	if e.metrics != nil {
		e.metrics.ObserveAttempt(string(models.OutcomeSucceeded))
	}
	e.emit(ctx, audit.EventTransmissionSucceeded, record, nil)
	if e.logger != nil {
		e.logger.InfoContext(ctx, "transmission succeeded",
			"record_id", record.ID.String(),
			"irn", record.IRNValue,
			"attempt_count", record.AttemptCount,
		)
	}
	return record, nil
}

func (e *Engine) finishCancelled(ctx context.Context, record models.TransmissionRecord, startedAt, completedAt time.Time) (models.TransmissionRecord, error) {
	// The cancelled attempt never counted; the record waits for an operator.
	record.NextAttemptAt = time.Time{}

	record, err := e.transition(ctx, record, models.StatusRetrying)
	if err != nil {
		return models.TransmissionRecord{}, err
	}
	e.appendAttempt(ctx, record.ID, models.Attempt{
		StartedAt: startedAt, CompletedAt: completedAt,
		Outcome: models.OutcomeCancelled,
	})

	if e.metrics != nil {
		e.metrics.ObserveAttempt(string(models.OutcomeCancelled))
	}
	e.emit(ctx, audit.EventTransmissionCancelled, record, nil)
	return record, nil
}

func (e *Engine) finishFailure(ctx context.Context, record models.TransmissionRecord, submitErr error, startedAt, completedAt time.Time) (models.TransmissionRecord, error) {
	record.AttemptCount++
	record.LastError = submitErr.Error()

	retryable := client.IsTransient(submitErr) &&
		(record.AttemptCount <= record.MaxRetries)

	var err error
	if retryable {
		delay := e.backoff.Delay(record.AttemptCount)
		record.BackoffSeconds = delay.Seconds()
		record.NextAttemptAt = completedAt.Add(delay)
		record, err = e.transition(ctx, record, models.StatusRetrying)
		if err != nil {
			return models.TransmissionRecord{}, err
		}
		e.scheduler.Schedule(record.NextAttemptAt, record.ID)
	} else {
		record.Forced = false
		record.NextAttemptAt = time.Time{}
		record, err = e.transition(ctx, record, models.StatusDeadLettered)
		if err != nil {
			return models.TransmissionRecord{}, err
		}
		e.observeDeadLetter(ctx, record)
	}

	e.appendAttempt(ctx, record.ID, models.Attempt{
		Number: record.AttemptCount, StartedAt: startedAt, CompletedAt: completedAt,
		Outcome: models.OutcomeFailed, Error: submitErr.Error(),
	})
	if e.metrics != nil {
		e.metrics.ObserveAttempt(string(models.OutcomeFailed))
	}
	if e.logger != nil {
		e.logger.WarnContext(ctx, "transmission attempt failed",
			"record_id", record.ID.String(),
			"irn", record.IRNValue,
			"attempt_count", record.AttemptCount,
			"status", record.Status,
			"error", submitErr.Error(),
		)
	}
	return record, nil
}

func (e *Engine) transition(ctx context.Context, record models.TransmissionRecord, to models.Status) (models.TransmissionRecord, error) {
	if !models.CanTransition(record.Status, to) {
		return models.TransmissionRecord{}, dErrors.Newf(dErrors.CodeInvalidTransition,
			"transmission cannot move from %s to %s", record.Status, to)
	}
	record.Status = to
	record.UpdatedAt = e.now().UTC()
	if err := e.ledger.Update(ctx, record); err != nil {
		return models.TransmissionRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "update transmission record failed")
	}
	return record, nil
}

func (e *Engine) appendAttempt(ctx context.Context, recordID id.TransmissionID, attempt models.Attempt) {
	if err := e.ledger.AppendAttempt(ctx, recordID, attempt); err != nil && e.logger != nil {
		e.logger.ErrorContext(ctx, "append attempt failed",
			"record_id", recordID.String(),
			"error", err,
		)
	}
}

func (e *Engine) observeDeadLetter(ctx context.Context, record models.TransmissionRecord) {
	e.emit(ctx, audit.EventTransmissionDead, record, map[string]string{
		"last_error": record.LastError,
	})
	if e.metrics == nil {
		return
	}
	if counts, err := e.ledger.Counts(ctx); err == nil {
		e.metrics.SetDeadLettered(counts.DeadLettered)
	}
}

func (e *Engine) emit(ctx context.Context, name audit.EventName, record models.TransmissionRecord, detail map[string]string) {
	if e.auditor == nil {
		return
	}
	_ = e.auditor.Emit(ctx, audit.Event{
		Action:  string(name),
		Subject: record.ID.String(),
		Detail:  detail,
	})
}

// dispatch is the scheduler's fire callback: attempts run on the bounded
// worker pool, never on the scheduling loop itself.
func (e *Engine) dispatch(ctx context.Context, recordID id.TransmissionID) {
	if err := e.workers.Acquire(ctx, 1); err != nil {
		return
	}
	go func() {
		defer e.workers.Release(1)
		if _, err := e.Attempt(ctx, recordID); err != nil && e.logger != nil {
			e.logger.ErrorContext(ctx, "scheduled attempt failed",
				"record_id", recordID.String(),
				"error", err,
			)
		}
	}()
}

func (e *Engine) lockFor(recordID id.TransmissionID) *sync.Mutex {
	lock, _ := e.locks.LoadOrStore(recordID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
