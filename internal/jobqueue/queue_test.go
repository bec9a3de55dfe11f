package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techresidents/archivesvc/internal/apierrors"
	"github.com/techresidents/archivesvc/internal/logger"
	"github.com/techresidents/archivesvc/internal/models"
)

func init() {
	_ = logger.Initialize("error", "/tmp/archivesvc-jobqueue-test.log")
}

func TestPutThenGetReturnsCandidate(t *testing.T) {
	store := NewMemoryStore()
	q := NewQueue(store, 10*time.Millisecond, 10)

	require.NoError(t, q.Put(&models.ArchiveJob{SessionID: 42, RetriesRemaining: 3}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	job, err := q.Get(context.Background(), time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 42, job.SessionID)
}

func TestGetReturnsEmptyWhenNoCandidate(t *testing.T) {
	store := NewMemoryStore()
	q := NewQueue(store, 10*time.Millisecond, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	_, err := q.Get(context.Background(), 30*time.Millisecond)
	assert.Equal(t, apierrors.Empty, err)
}

func TestLeaseGuardMarksSuccessOnNilError(t *testing.T) {
	store := NewMemoryStore()
	q := NewQueue(store, 10*time.Millisecond, 10)

	job := &models.ArchiveJob{SessionID: 1, RetriesRemaining: 1}
	require.NoError(t, store.Insert(job))

	leased := &LeasedJob{ID: job.ID, SessionID: job.SessionID}
	err := q.RunInLeaseGuard(leased, "worker-1", func(*LeasedJob) error { return nil })
	require.NoError(t, err)

	row, err := store.Get(job.ID)
	require.NoError(t, err)
	require.NotNil(t, row.Successful)
	assert.True(t, *row.Successful)
}

func TestLeaseGuardMarksFailureOnError(t *testing.T) {
	store := NewMemoryStore()
	q := NewQueue(store, 10*time.Millisecond, 10)

	job := &models.ArchiveJob{SessionID: 1, RetriesRemaining: 1}
	require.NoError(t, store.Insert(job))

	leased := &LeasedJob{ID: job.ID}
	boom := assert.AnError
	err := q.RunInLeaseGuard(leased, "worker-1", func(*LeasedJob) error { return boom })
	assert.ErrorIs(t, err, boom)

	row, err2 := store.Get(job.ID)
	require.NoError(t, err2)
	require.NotNil(t, row.Successful)
	assert.False(t, *row.Successful)
}

func TestConcurrentLeaseRaceOnlyOneWinner(t *testing.T) {
	store := NewMemoryStore()
	q := NewQueue(store, 10*time.Millisecond, 10)

	job := &models.ArchiveJob{SessionID: 1, RetriesRemaining: 1}
	require.NoError(t, store.Insert(job))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, losses int

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			leased := &LeasedJob{ID: job.ID}
			err := q.Enter(leased, "worker")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if err == apierrors.AlreadyOwned {
				losses++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
}
