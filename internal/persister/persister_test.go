package persister

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techresidents/archivesvc/internal/archivestream"
	"github.com/techresidents/archivesvc/internal/storagepool"
)

func newPool(t *testing.T) *storagepool.Pool {
	t.Helper()
	fs, err := storagepool.NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	return storagepool.NewPool([]storagepool.Storage{fs})
}

func seedLocal(t *testing.T, pool *storagepool.Pool, filename, content string) {
	t.Helper()
	handle, release, err := pool.Get(context.Background())
	require.NoError(t, err)
	defer release()
	require.NoError(t, handle.Save(context.Background(), filename, strings.NewReader(content)))
}

func TestPersistUploadsAndInsertsRows(t *testing.T) {
	public := newPool(t)
	private := newPool(t)
	local := newPool(t)
	store := NewMemoryStore()

	seedLocal(t, local, "archive/2A.mp3", "stitched-audio")
	seedLocal(t, local, "archive/2A-1.mp3", "raw-user-audio")

	lengthMS := 1000
	streams := []*archivestream.Stream{
		{Filename: "archive/2A.mp3", Type: archivestream.TypeStitchedAudio, Users: []int64{1, 2}, LengthMS: &lengthMS},
		{Filename: "archive/2A-1.mp3", Type: archivestream.TypeUserAudio, Users: []int64{1}, LengthMS: &lengthMS},
	}

	p := New(public, private, local, store)
	require.NoError(t, p.Persist(context.Background(), 42, streams))

	archives := store.ArchivesBySession(42)
	require.Len(t, archives, 2)

	var publicCount, privateCount int
	for _, a := range archives {
		if a.Public {
			publicCount++
		} else {
			privateCount++
		}
	}
	assert.Equal(t, 1, publicCount)
	assert.Equal(t, 1, privateCount)

	publicHandle, release, err := public.Get(context.Background())
	require.NoError(t, err)
	defer release()
	exists, err := publicHandle.Exists(context.Background(), "archive/2A.mp3")
	require.NoError(t, err)
	assert.True(t, exists)

	privateHandle, releasePriv, err := private.Get(context.Background())
	require.NoError(t, err)
	defer releasePriv()
	exists, err = privateHandle.Exists(context.Background(), "archive/2A-1.mp3")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPersistSkipsUploadWhenDestinationAlreadyHasObject(t *testing.T) {
	public := newPool(t)
	private := newPool(t)
	local := newPool(t)
	store := NewMemoryStore()

	seedLocal(t, public, "archive/2A.mp3", "already-there")
	seedLocal(t, local, "archive/2A.mp3", "would-be-uploaded")

	streams := []*archivestream.Stream{
		{Filename: "archive/2A.mp3", Type: archivestream.TypeStitchedAudio, Users: []int64{1}},
	}

	p := New(public, private, local, store)
	require.NoError(t, p.Persist(context.Background(), 42, streams))

	handle, release, err := public.Get(context.Background())
	require.NoError(t, err)
	defer release()
	rc, err := handle.Open(context.Background(), "archive/2A.mp3")
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "already-there", string(content))
}

func TestPersistRejectsDuplicatePath(t *testing.T) {
	public := newPool(t)
	private := newPool(t)
	local := newPool(t)
	store := NewMemoryStore()

	seedLocal(t, local, "archive/2A-1.mp3", "raw-user-audio")
	streams := []*archivestream.Stream{
		{Filename: "archive/2A-1.mp3", Type: archivestream.TypeUserAudio, Users: []int64{1}},
	}

	p := New(public, private, local, store)
	require.NoError(t, p.Persist(context.Background(), 42, streams))

	err := p.Persist(context.Background(), 42, streams)
	require.Error(t, err)
}
