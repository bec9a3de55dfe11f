// Package jobqueue implements JQ: a durable producer/consumer over the
// jobs table with at-most-one-lease semantics. The poller enqueues
// unleased candidate rows into a bounded in-memory channel; the actual
// lease is only claimed when a worker enters the LeaseGuard, so a full
// worker pool never causes head-of-line blocking against the database.
package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/techresidents/archivesvc/internal/apierrors"
	"github.com/techresidents/archivesvc/internal/logger"
	"github.com/techresidents/archivesvc/internal/metrics"
	"github.com/techresidents/archivesvc/internal/models"
	"go.uber.org/zap"
)

// LeasedJob is a candidate handed to a worker. It is not yet leased;
// entering the LeaseGuard performs the actual atomic claim.
type LeasedJob struct {
	ID               string
	SessionID        int64
	Data             []byte
	RetriesRemaining int

	owner   string
	claimed bool
}

// Queue owns the poller goroutine and the bounded candidate channel.
type Queue struct {
	store        Store
	pollInterval time.Duration
	candidates   chan *LeasedJob

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewQueue constructs a Queue. bufferSize bounds the number of
// not-yet-leased candidates the poller may hold in memory at once.
func NewQueue(store Store, pollInterval time.Duration, bufferSize int) *Queue {
	return &Queue{
		store:        store,
		pollInterval: pollInterval,
		candidates:   make(chan *LeasedJob, bufferSize),
		stopCh:       make(chan struct{}),
	}
}

// Put inserts a new row, the producer side of the contract (also used by
// the worker pool to schedule a retry row).
func (q *Queue) Put(job *models.ArchiveJob) error {
	return q.store.Insert(job)
}

// Start launches the poller goroutine. It wakes every pollInterval,
// queries eligible rows ordered by created ascending, and enqueues
// candidates. Safe to call once; callers typically invoke this from the
// Archiver's own lifecycle.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.pollLoop(ctx)
}

func (q *Queue) pollLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	q.pollOnce()

	for {
		select {
		case <-ticker.C:
			q.pollOnce()
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) pollOnce() {
	rows, err := q.store.Eligible(time.Now(), cap(q.candidates))
	metrics.RecordPoll(err)
	if err != nil {
		logger.Log.Error("job queue poll failed", zap.Error(err))
		return
	}

	for _, row := range rows {
		candidate := &LeasedJob{
			ID:               row.ID,
			SessionID:        row.SessionID,
			Data:             row.Data,
			RetriesRemaining: row.RetriesRemaining,
		}
		select {
		case q.candidates <- candidate:
			metrics.SetQueueDepth(len(q.candidates))
		case <-q.stopCh:
			return
		default:
			// Channel full: leave the row unleased, the next poll will
			// pick it up again since it's still eligible.
			return
		}
	}
}

// Get returns a candidate, blocking up to timeout. Returns Empty if no
// candidate arrives in time, Stopped if shutdown has been initiated.
func (q *Queue) Get(ctx context.Context, timeout time.Duration) (*LeasedJob, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job, ok := <-q.candidates:
		if !ok {
			return nil, apierrors.Stopped
		}
		metrics.SetQueueDepth(len(q.candidates))
		return job, nil
	case <-timer.C:
		return nil, apierrors.Empty
	case <-q.stopCh:
		return nil, apierrors.Stopped
	case <-ctx.Done():
		return nil, apierrors.Stopped
	}
}

// Enter performs the lease guard's atomic claim. Fails with AlreadyOwned
// if a concurrent worker already claimed the row.
func (q *Queue) Enter(job *LeasedJob, owner string) error {
	ok, err := q.store.Claim(job.ID, owner, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		metrics.RecordLeaseLost()
		return apierrors.AlreadyOwned
	}
	metrics.RecordJobClaimed()
	job.owner = owner
	job.claimed = true
	return nil
}

// Exit finalizes the lease: successful exit (runErr == nil) sets
// end=now, successful=true; error exit sets successful=false. Exit is a
// no-op if Enter was never successfully called (e.g. AlreadyOwned).
func (q *Queue) Exit(job *LeasedJob, runErr error) error {
	if !job.claimed {
		return nil
	}
	return q.store.Finalize(job.ID, time.Now(), runErr == nil)
}

// RunInLeaseGuard enters the guard, runs fn if the claim succeeds, and
// always exits the guard with fn's result. AlreadyOwned from Enter is
// returned directly without invoking fn.
func (q *Queue) RunInLeaseGuard(job *LeasedJob, owner string, fn func(*LeasedJob) error) error {
	if err := q.Enter(job, owner); err != nil {
		return err
	}

	runErr := fn(job)
	if exitErr := q.Exit(job, runErr); exitErr != nil {
		logger.Log.Error("failed to finalize job lease",
			logger.WithJobID(job.ID), zap.Error(exitErr))
	}
	return runErr
}

// Stop closes the queue's stop channel, which ends the poller and makes
// any blocked or later Get call return Stopped.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})
}

// Join waits up to timeout for the poller goroutine to exit.
func (q *Queue) Join(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return apierrors.Stopped
	}
}
