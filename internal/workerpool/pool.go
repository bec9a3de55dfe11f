// Package workerpool implements WP: a bounded pool of workers consuming
// LeasedJobs handed to it (by the Archiver's poller loop) and invoking
// the pipeline runner. The pool itself does not poll the job queue; it
// only bounds concurrency and drives the lease guard + retry scheduling
// around each run.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/techresidents/archivesvc/internal/apierrors"
	"github.com/techresidents/archivesvc/internal/jobqueue"
	"github.com/techresidents/archivesvc/internal/logger"
	"github.com/techresidents/archivesvc/internal/metrics"
	"github.com/techresidents/archivesvc/internal/models"
	"go.uber.org/zap"
)

// Runner is the pipeline contract a worker drives per job. It is
// satisfied by *pipeline.Pipeline (internal/pipeline).
type Runner interface {
	Run(ctx context.Context, job *jobqueue.LeasedJob) error
}

// Pool owns N long-lived worker goroutines, each running one job to
// completion before accepting another.
type Pool struct {
	queue       *jobqueue.Queue
	runner      Runner
	numWorkers  int
	retryDelay  time.Duration
	ownerPrefix string

	jobs chan *jobqueue.LeasedJob
	wg   sync.WaitGroup
}

// NewPool constructs a worker pool over queue, driving runner per job.
// ownerPrefix names the lease owner per worker ("archivesvc-worker-0",
// ...), letting operators tell which worker holds a stuck lease.
func NewPool(queue *jobqueue.Queue, runner Runner, numWorkers int, retryDelay time.Duration, ownerPrefix string) *Pool {
	return &Pool{
		queue:       queue,
		runner:      runner,
		numWorkers:  numWorkers,
		retryDelay:  retryDelay,
		ownerPrefix: ownerPrefix,
		jobs:        make(chan *jobqueue.LeasedJob, numWorkers),
	}
}

// Start launches the worker goroutines. Each worker loops until ctx is
// done or the jobs channel is closed, whichever comes first.
func (p *Pool) Start(ctx context.Context) {
	metrics.SetWorkerPoolSize(p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit hands a leased job candidate to the pool, blocking until a
// worker is free or ctx is done. Bounded by the jobs channel's capacity
// (== numWorkers), so the caller (the Archiver's poller) naturally
// backs off once every worker is busy.
func (p *Pool) Submit(ctx context.Context, job *jobqueue.LeasedJob) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals workers to exit once the jobs channel drains.
func (p *Pool) Close() {
	close(p.jobs)
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	owner := fmt.Sprintf("%s-%d", p.ownerPrefix, id)

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, job, owner)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) process(ctx context.Context, job *jobqueue.LeasedJob, owner string) {
	metrics.RecordWorkerStart()
	defer metrics.RecordWorkerDone()

	err := p.queue.RunInLeaseGuard(job, owner, func(j *jobqueue.LeasedJob) error {
		return p.runner.Run(ctx, j)
	})

	switch {
	case err == nil:
		metrics.RecordJobOutcome(nil)
		return
	case err == apierrors.AlreadyOwned:
		logger.Log.Info("lease lost to another worker, discarding",
			logger.WithJobID(job.ID), logger.WithOwner(owner))
		return
	default:
		metrics.RecordJobOutcome(err)
		p.scheduleRetry(job, err)
	}
}

func (p *Pool) scheduleRetry(job *jobqueue.LeasedJob, runErr error) {
	if job.RetriesRemaining <= 0 {
		metrics.RecordJobRetriesExhausted()
		logger.Log.Error("job failed, retries exhausted",
			logger.WithJobID(job.ID), logger.WithSessionID(job.SessionID), zap.Error(runErr))
		return
	}

	notBefore := time.Now().Add(p.retryDelay)
	retry := &models.ArchiveJob{
		SessionID:        job.SessionID,
		NotBefore:        &notBefore,
		RetriesRemaining: job.RetriesRemaining - 1,
		Data:             job.Data,
	}

	if putErr := p.queue.Put(retry); putErr != nil {
		logger.Log.Error("failed to schedule retry job",
			logger.WithJobID(job.ID), zap.Error(putErr))
		return
	}
	metrics.RecordJobRetried()

	logger.Log.Warn("job failed, retry scheduled",
		logger.WithJobID(job.ID), logger.WithSessionID(job.SessionID),
		zap.Error(runErr), zap.Int("retries_remaining", retry.RetriesRemaining))
}

// Join waits up to timeout for all workers to finish their current job
// and exit.
func (p *Pool) Join(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return apierrors.Stopped
	}
}
