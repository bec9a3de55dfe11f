package storagepool

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetAndReleaseRoundTrips(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystemStorage(dir)
	require.NoError(t, err)

	pool := NewPool([]Storage{fs})

	h, release, err := pool.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, Storage(fs), h)
	release()

	h2, release2, err := pool.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, Storage(fs), h2)
	release2()
}

func TestPoolGetBlocksWhenExhausted(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystemStorage(dir)
	require.NoError(t, err)

	pool := NewPool([]Storage{fs})

	_, release, err := pool.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err = pool.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
}

func TestFilesystemStorageSaveOpenExistsDelete(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystemStorage(dir)
	require.NoError(t, err)

	ctx := context.Background()
	exists, err := fs.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.Save(ctx, "a/b.txt", strings.NewReader("hello")))

	exists, err = fs.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := fs.Open(ctx, "a/b.txt")
	require.NoError(t, err)
	defer rc.Close()

	require.NoError(t, fs.Delete(ctx, "a/b.txt"))
	exists, err = fs.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}
