package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"stampgate/internal/transmission/models"
	id "stampgate/pkg/domain"
	"stampgate/pkg/platform/sentinel"
)

type InMemoryLedger struct {
	mu       sync.RWMutex
	byID     map[id.TransmissionID]models.TransmissionRecord
	byIRN    map[string]id.TransmissionID
	attempts map[id.TransmissionID][]models.Attempt
}

func NewInMemory() *InMemoryLedger {
	return &InMemoryLedger{
		byID:     make(map[id.TransmissionID]models.TransmissionRecord),
		byIRN:    make(map[string]id.TransmissionID),
		attempts: make(map[id.TransmissionID][]models.Attempt),
	}
}

func (l *InMemoryLedger) Create(_ context.Context, record models.TransmissionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[record.ID]; exists {
		return sentinel.ErrConflict
	}
	record.Attempts = nil
	l.byID[record.ID] = record
	l.byIRN[record.IRNValue] = record.ID
	return nil
}

func (l *InMemoryLedger) Get(_ context.Context, recordID id.TransmissionID) (models.TransmissionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.get(recordID)
}

func (l *InMemoryLedger) GetByIRN(_ context.Context, irnValue string) (models.TransmissionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recordID, ok := l.byIRN[irnValue]
	if !ok {
		return models.TransmissionRecord{}, sentinel.ErrNotFound
	}
	return l.get(recordID)
}

func (l *InMemoryLedger) Update(_ context.Context, record models.TransmissionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[record.ID]; !exists {
		return sentinel.ErrNotFound
	}
	record.Attempts = nil
	l.byID[record.ID] = record
	return nil
}

func (l *InMemoryLedger) AppendAttempt(_ context.Context, recordID id.TransmissionID, attempt models.Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[recordID]; !exists {
		return sentinel.ErrNotFound
	}
	l.attempts[recordID] = append(l.attempts[recordID], attempt)
	return nil
}

func (l *InMemoryLedger) ListByStatus(_ context.Context, status models.Status) ([]models.TransmissionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var records []models.TransmissionRecord
	for recordID, record := range l.byID {
		if record.Status != status {
			continue
		}
		record.Attempts = append([]models.Attempt(nil), l.attempts[recordID]...)
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (l *InMemoryLedger) Counts(_ context.Context) (Counts, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var counts Counts
	for _, record := range l.byID {
		counts.Total++
		counts.AttemptSum += int64(record.AttemptCount)
		switch record.Status {
		case models.StatusSucceeded:
			counts.Succeeded++
		case models.StatusRetrying:
			counts.Retrying++
		case models.StatusDeadLettered:
			counts.DeadLettered++
		}
	}
	return counts, nil
}

func (l *InMemoryLedger) Timeline(_ context.Context, start, end time.Time, interval time.Duration) ([]models.TimelineBucket, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	buckets := makeBuckets(start, end, interval)
	for _, attempts := range l.attempts {
		for _, attempt := range attempts {
			placeAttempt(buckets, start, interval, attempt)
		}
	}
	return buckets, nil
}

func (l *InMemoryLedger) get(recordID id.TransmissionID) (models.TransmissionRecord, error) {
	record, ok := l.byID[recordID]
	if !ok {
		return models.TransmissionRecord{}, sentinel.ErrNotFound
	}
	record.Attempts = append([]models.Attempt(nil), l.attempts[recordID]...)
	return record, nil
}

func makeBuckets(start, end time.Time, interval time.Duration) []models.TimelineBucket {
	var buckets []models.TimelineBucket
	for t := start; t.Before(end); t = t.Add(interval) {
		buckets = append(buckets, models.TimelineBucket{Start: t})
	}
	return buckets
}

func placeAttempt(buckets []models.TimelineBucket, start time.Time, interval time.Duration, attempt models.Attempt) {
	if attempt.CompletedAt.Before(start) {
		return
	}
	idx := int(attempt.CompletedAt.Sub(start) / interval)
	if idx < 0 || idx >= len(buckets) {
		return
	}
	switch attempt.Outcome {
	case models.OutcomeSucceeded:
		buckets[idx].Succeeded++
	case models.OutcomeFailed:
		buckets[idx].Failed++
	case models.OutcomeCancelled:
		buckets[idx].Cancelled++
	}
}
