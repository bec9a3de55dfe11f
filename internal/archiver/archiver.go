// Package archiver implements A: the top-level orchestrator that starts
// and stops the job queue and worker pool, and runs its own poller loop
// handing leased job candidates from the queue to the pool.
package archiver

import (
	"context"
	"sync"
	"time"

	"github.com/techresidents/archivesvc/internal/apierrors"
	"github.com/techresidents/archivesvc/internal/jobqueue"
	"github.com/techresidents/archivesvc/internal/logger"
	"github.com/techresidents/archivesvc/internal/workerpool"
	"go.uber.org/zap"
)

// Archiver owns the lifecycle of the job queue and worker pool. Start is
// idempotent; Stop initiates shutdown of the queue then the pool; Join
// waits for both plus the archiver's own poll loop.
type Archiver struct {
	queue      *jobqueue.Queue
	pool       *workerpool.Pool
	getTimeout time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an Archiver over an already-wired queue and pool.
func New(queue *jobqueue.Queue, pool *workerpool.Pool) *Archiver {
	return &Archiver{
		queue:      queue,
		pool:       pool,
		getTimeout: 5 * time.Second,
	}
}

// Start is idempotent. It starts the queue's poller, the worker pool,
// and the archiver's own dispatch loop.
//
// The run context is always derived from context.Background(), never
// from a caller-supplied one: Start is reachable from the HTTP façade's
// POST /start handler, whose request context is canceled the moment
// that handler returns, which would otherwise tear down the poller and
// pool goroutines moments after starting them.
func (a *Archiver) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.queue.Start(runCtx)
	a.pool.Start(runCtx)

	a.wg.Add(1)
	go a.run(runCtx)
}

func (a *Archiver) run(ctx context.Context) {
	defer a.wg.Done()

	for {
		job, err := a.queue.Get(ctx, a.getTimeout)
		switch {
		case err == nil:
			if submitErr := a.pool.Submit(ctx, job); submitErr != nil {
				logger.Log.Error("failed to submit job to worker pool",
					logger.WithJobID(job.ID), zap.Error(submitErr))
			}
		case err == apierrors.Empty:
			continue
		case err == apierrors.Stopped:
			return
		default:
			logger.Log.Error("archiver poll loop error", zap.Error(err))
			continue
		}
	}
}

// Stop is idempotent. It signals the queue to stop (unblocking Get) and
// closes the worker pool's job channel so no new jobs start, but does
// not cancel the run context: a job already in progress keeps the
// context its subprocess (ffmpeg/sox) and provider HTTP calls were
// started with, so it runs to completion rather than being killed
// mid-stage. Join's deadline is the only thing that forces a hard
// cancel, and only as a last resort.
func (a *Archiver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return
	}
	a.running = false

	a.queue.Stop()
	a.pool.Close()
}

// Join waits up to timeout for the queue, pool, and dispatch loop to
// finish. If the deadline passes before everything has drained, it
// cancels the run context as a last resort so a wedged job doesn't hang
// the process forever, then returns Stopped.
func (a *Archiver) Join(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	if err := a.queue.Join(time.Until(deadline)); err != nil {
		a.cancelRunContext()
		return err
	}
	if err := a.pool.Join(time.Until(deadline)); err != nil {
		a.cancelRunContext()
		return err
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(time.Until(deadline)):
		a.cancelRunContext()
		return apierrors.Stopped
	}
}

func (a *Archiver) cancelRunContext() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}
