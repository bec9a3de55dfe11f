package waveform

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techresidents/archivesvc/internal/archivestream"
	"github.com/techresidents/archivesvc/internal/storagepool"
)

func TestGenerateAttachesWaveformDataAndFilename(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("sox"); err != nil {
		t.Skip("sox not installed")
	}

	dir := t.TempDir()
	fs, err := storagepool.NewFilesystemStorage(dir)
	require.NoError(t, err)
	pool := storagepool.NewPool([]storagepool.Storage{fs})

	localDir := t.TempDir()
	localFS, err := storagepool.NewFilesystemStorage(localDir)
	require.NoError(t, err)
	localPool := storagepool.NewPool([]storagepool.Storage{localFS})

	ctx := context.Background()
	require.NoError(t, exec.CommandContext(ctx, "sox", "-n", fs.Path("input.wav"), "synth", "1", "sine", "440").Run())
	require.NoError(t, exec.CommandContext(ctx, "ffmpeg", "-y", "-i", fs.Path("input.wav"), fs.Path("archive/2A.mp3")).Run())

	g := New("ffmpeg", pool, localPool)
	stream := &archivestream.Stream{Filename: "archive/2A.mp3", Type: archivestream.TypeStitchedAudio}

	require.NoError(t, g.Generate(ctx, stream, "archive/2A"))

	assert.Equal(t, "archive/2A.png", stream.WaveformFilename)
	require.NotEmpty(t, stream.WaveformData)
	assert.Len(t, stream.WaveformData, bucketCount)
}
