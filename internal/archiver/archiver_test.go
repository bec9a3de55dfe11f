package archiver

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techresidents/archivesvc/internal/jobqueue"
	"github.com/techresidents/archivesvc/internal/logger"
	"github.com/techresidents/archivesvc/internal/models"
	"github.com/techresidents/archivesvc/internal/workerpool"
)

func init() {
	_ = logger.Initialize("error", "/tmp/archivesvc-archiver-test.log")
}

type countingRunner struct {
	calls int32
}

func (r *countingRunner) Run(ctx context.Context, job *jobqueue.LeasedJob) error {
	atomic.AddInt32(&r.calls, 1)
	return nil
}

func TestArchiverRunsSubmittedJobs(t *testing.T) {
	store := jobqueue.NewMemoryStore()
	queue := jobqueue.NewQueue(store, 10*time.Millisecond, 10)

	runner := &countingRunner{}
	pool := workerpool.NewPool(queue, runner, 2, time.Second, "archivesvc-worker")

	a := New(queue, pool)
	a.Start()

	require.NoError(t, queue.Put(&models.ArchiveJob{SessionID: 1, RetriesRemaining: 1}))
	require.NoError(t, queue.Put(&models.ArchiveJob{SessionID: 2, RetriesRemaining: 1}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runner.calls) == 2 }, 2*time.Second, 10*time.Millisecond)

	a.Stop()
	require.NoError(t, a.Join(2*time.Second))
}

func TestArchiverStartIsIdempotent(t *testing.T) {
	store := jobqueue.NewMemoryStore()
	queue := jobqueue.NewQueue(store, 10*time.Millisecond, 10)
	runner := &countingRunner{}
	pool := workerpool.NewPool(queue, runner, 1, time.Second, "archivesvc-worker")

	a := New(queue, pool)
	a.Start()
	a.Start() // no-op, must not panic or double-start workers

	a.Stop()
	a.Stop() // no-op
	require.NoError(t, a.Join(time.Second))
}
