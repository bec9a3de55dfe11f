package waveform

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProducesPNGOfExpectedDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wave.png")
	data := []float64{0.1, 0.5, 1.0, 0.3}

	require.NoError(t, render(data, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Equal(t, len(data), bounds.Dx())
	assert.Equal(t, renderHeight, bounds.Dy())
}
