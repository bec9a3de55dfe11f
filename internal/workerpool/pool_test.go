package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techresidents/archivesvc/internal/jobqueue"
	"github.com/techresidents/archivesvc/internal/logger"
	"github.com/techresidents/archivesvc/internal/models"
)

func init() {
	_ = logger.Initialize("error", "/tmp/archivesvc-workerpool-test.log")
}

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	fn    func(job *jobqueue.LeasedJob) error
}

func (f *fakeRunner) Run(ctx context.Context, job *jobqueue.LeasedJob) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(job)
	}
	return nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPoolRunsSuccessfulJobToCompletion(t *testing.T) {
	store := jobqueue.NewMemoryStore()
	queue := jobqueue.NewQueue(store, 10*time.Millisecond, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job := &models.ArchiveJob{SessionID: 42, RetriesRemaining: 1}
	require.NoError(t, queue.Put(job))

	runner := &fakeRunner{}
	pool := NewPool(queue, runner, 2, 100*time.Millisecond, "archivesvc-worker")
	pool.Start(ctx)

	require.NoError(t, pool.Submit(ctx, &jobqueue.LeasedJob{ID: job.ID, SessionID: job.SessionID, RetriesRemaining: job.RetriesRemaining}))

	assert.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 10*time.Millisecond)

	pool.Close()
	require.NoError(t, pool.Join(time.Second))
}

func TestPoolSchedulesRetryOnFailureWithRetriesRemaining(t *testing.T) {
	store := jobqueue.NewMemoryStore()
	queue := jobqueue.NewQueue(store, 10*time.Millisecond, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job := &models.ArchiveJob{SessionID: 7, RetriesRemaining: 2}
	require.NoError(t, queue.Put(job))

	var attempts int32
	runner := &fakeRunner{fn: func(j *jobqueue.LeasedJob) error {
		atomic.AddInt32(&attempts, 1)
		return assert.AnError
	}}
	pool := NewPool(queue, runner, 1, 10*time.Millisecond, "archivesvc-worker")
	pool.Start(ctx)

	require.NoError(t, pool.Submit(ctx, &jobqueue.LeasedJob{ID: job.ID, SessionID: job.SessionID, RetriesRemaining: job.RetriesRemaining}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) >= 1 }, time.Second, 10*time.Millisecond)

	rows, err := store.Eligible(time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].RetriesRemaining)

	pool.Close()
	require.NoError(t, pool.Join(time.Second))
}

func TestPoolDoesNotRetryWhenExhausted(t *testing.T) {
	store := jobqueue.NewMemoryStore()
	queue := jobqueue.NewQueue(store, 10*time.Millisecond, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	job := &models.ArchiveJob{SessionID: 9, RetriesRemaining: 0}
	require.NoError(t, queue.Put(job))

	runner := &fakeRunner{fn: func(j *jobqueue.LeasedJob) error { return assert.AnError }}
	pool := NewPool(queue, runner, 1, 10*time.Millisecond, "archivesvc-worker")
	pool.Start(ctx)

	require.NoError(t, pool.Submit(ctx, &jobqueue.LeasedJob{ID: job.ID, SessionID: job.SessionID, RetriesRemaining: job.RetriesRemaining}))

	assert.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, runner.callCount(), "exhausted retries must not re-invoke the runner")

	rows, err := store.Eligible(time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 0, "no retry row should be created when retries are exhausted")

	pool.Close()
	require.NoError(t, pool.Join(time.Second))
}
