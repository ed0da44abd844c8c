// Package service is the batch orchestrator: bounded fan-out of stamped
// documents into the transmission engine with per-job outcome aggregation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"stampgate/internal/batch/models"
	"stampgate/internal/batch/store"
	transmissionmodels "stampgate/internal/transmission/models"
	id "stampgate/pkg/domain"
	dErrors "stampgate/pkg/domain-errors"
	"stampgate/pkg/platform/sentinel"
)

// TransmissionEngine is the slice of the engine the orchestrator drives.
type TransmissionEngine interface {
	Enqueue(ctx context.Context, csid id.StampID) (transmissionmodels.TransmissionRecord, error)
	Attempt(ctx context.Context, recordID id.TransmissionID) (transmissionmodels.TransmissionRecord, error)
	Get(ctx context.Context, recordID id.TransmissionID) (transmissionmodels.TransmissionRecord, error)
}

type Service struct {
	jobs   store.Store
	engine TransmissionEngine

	concurrency int
	window      time.Duration

	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithConcurrency bounds in-flight submissions per job.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithObservationWindow bounds how long a job watches members still in
// backoff before reporting them pending.
func WithObservationWindow(window time.Duration) Option {
	return func(s *Service) { s.window = window }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(jobs store.Store, engine TransmissionEngine, opts ...Option) (*Service, error) {
	if jobs == nil {
		return nil, fmt.Errorf("batch store is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("transmission engine is required")
	}

	svc := &Service{
		jobs:        jobs,
		engine:      engine,
		concurrency: 4,
		window:      30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit fans the stamped documents out into the transmission engine and
// returns the running job. Progress is polled through Get; the fan-out keeps
// running in the background until every member is accounted for.
func (s *Service) Submit(ctx context.Context, csids []id.StampID) (models.BatchJob, error) {
	if len(csids) == 0 {
		return models.BatchJob{}, dErrors.New(dErrors.CodeBadRequest, "batch requires at least one stamp")
	}

	job := models.BatchJob{
		ID:        id.NewBatchID(),
		Status:    models.StatusRunning,
		StartedAt: s.now().UTC(),
		Pending:   len(csids),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return models.BatchJob{}, dErrors.Wrap(err, dErrors.CodeInternal, "create batch job failed")
	}

	// The fan-out outlives the submit request.
	go s.run(context.WithoutCancel(ctx), job.ID, csids)
	return job, nil
}

// Get returns the job with its current counts.
func (s *Service) Get(ctx context.Context, jobID id.BatchID) (models.BatchJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.BatchJob{}, dErrors.New(dErrors.CodeNotFound, "batch job not found")
		}
		return models.BatchJob{}, dErrors.Wrap(err, dErrors.CodeInternal, "read batch job failed")
	}
	return job, nil
}

func (s *Service) run(ctx context.Context, jobID id.BatchID, csids []id.StampID) {
	recordIDs := make([]id.TransmissionID, len(csids))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for i, csid := range csids {
		group.Go(func() error {
			record, err := s.engine.Enqueue(groupCtx, csid)
			if err != nil {
				if s.logger != nil {
					s.logger.WarnContext(groupCtx, "batch member rejected at enqueue",
						"batch_id", jobID.String(),
						"csid", csid.String(),
						"error", err,
					)
				}
				return nil
			}
			recordIDs[i] = record.ID

			// One in-batch attempt per member; further retries belong to
			// the scheduler, not the batch.
			if record.Status == transmissionmodels.StatusQueued {
				if _, err := s.engine.Attempt(groupCtx, record.ID); err != nil && s.logger != nil {
					s.logger.WarnContext(groupCtx, "batch member attempt failed",
						"batch_id", jobID.String(),
						"record_id", record.ID.String(),
						"error", err,
					)
				}
			}
			return nil
		})
	}
	_ = group.Wait()

	s.observe(ctx, jobID, recordIDs)
}

// observe polls member records until they settle or the window closes, then
// marks the job completed with its final counts.
func (s *Service) observe(ctx context.Context, jobID id.BatchID, recordIDs []id.TransmissionID) {
	deadline := s.now().Add(s.window)
	for {
		settled := s.tally(ctx, jobID, recordIDs, false)
		if settled || !s.now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(500 * time.Millisecond):
		}
	}
	s.tally(ctx, jobID, recordIDs, true)
}

// tally recounts member outcomes and persists them. Returns true when no
// member is still pending. With complete set, the job is closed out.
func (s *Service) tally(ctx context.Context, jobID id.BatchID, recordIDs []id.TransmissionID, complete bool) bool {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return true
	}

	job.RecordIDs = job.RecordIDs[:0]
	job.Succeeded, job.Failed, job.Pending = 0, 0, 0
	for _, recordID := range recordIDs {
		if recordID.IsNil() {
			// Rejected at enqueue before a record existed.
			job.Failed++
			continue
		}
		job.RecordIDs = append(job.RecordIDs, recordID)

		record, err := s.engine.Get(ctx, recordID)
		if err != nil {
			job.Failed++
			continue
		}
		switch record.Status {
		case transmissionmodels.StatusSucceeded:
			job.Succeeded++
		case transmissionmodels.StatusDeadLettered:
			job.Failed++
		default:
			job.Pending++
		}
	}

	if complete {
		job.Status = models.StatusCompleted
		job.CompletedAt = s.now().UTC()
	}
	if err := s.jobs.Update(ctx, job); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "update batch job failed",
			"batch_id", jobID.String(),
			"error", err,
		)
	}
	return job.Pending == 0
}
