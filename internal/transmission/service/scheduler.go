package service

import (
	"container/heap"
	"context"
	"sync"
	"time"

	id "stampgate/pkg/domain"
)

// wakeEntry is one scheduled wake-up for a record in backoff.
type wakeEntry struct {
	wakeAt   time.Time
	recordID id.TransmissionID
}

type wakeQueue []wakeEntry

func (q wakeQueue) Len() int            { return len(q) }
func (q wakeQueue) Less(i, j int) bool  { return q[i].wakeAt.Before(q[j].wakeAt) }
func (q wakeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *wakeQueue) Push(x any)         { *q = append(*q, x.(wakeEntry)) }
func (q *wakeQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	*q = old[:n-1]
	return entry
}

// Scheduler wakes records when their backoff expires. Waits are scheduled,
// never busy-waited: one loop sleeps until the earliest wake-up and hands the
// record id to the fire callback, which dispatches into the worker pool.
type Scheduler struct {
	mu    sync.Mutex
	queue wakeQueue
	kick  chan struct{}

	fire func(ctx context.Context, recordID id.TransmissionID)
	now  func() time.Time
}

func NewScheduler(fire func(ctx context.Context, recordID id.TransmissionID)) *Scheduler {
	return &Scheduler{
		kick: make(chan struct{}, 1),
		fire: fire,
		now:  time.Now,
	}
}

// Schedule enqueues a wake-up. Safe from any goroutine.
func (s *Scheduler) Schedule(wakeAt time.Time, recordID id.TransmissionID) {
	s.mu.Lock()
	heap.Push(&s.queue, wakeEntry{wakeAt: wakeAt, recordID: recordID})
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done, firing due entries as their time arrives.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		next, ok := s.popDue(ctx)
		if !ok {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(next)

		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		case <-timer.C:
		}
	}
}

// popDue fires every due entry and returns the wait until the next one.
// Returns ok=false when ctx is done.
func (s *Scheduler) popDue(ctx context.Context) (time.Duration, bool) {
	for {
		if ctx.Err() != nil {
			return 0, false
		}

		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			return time.Hour, true
		}
		entry := s.queue[0]
		now := s.now()
		if entry.wakeAt.After(now) {
			s.mu.Unlock()
			return entry.wakeAt.Sub(now), true
		}
		heap.Pop(&s.queue)
		s.mu.Unlock()

		s.fire(ctx, entry.recordID)
	}
}
