package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := Fetcher("recording missing", cause)

	assert.Equal(t, "FETCHER_ERROR: recording missing: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestIsUnwrapsWrappedPipelineError(t *testing.T) {
	base := Stitcher("ffmpeg failed", errors.New("exit status 1"))
	wrapped := fmt.Errorf("stage failed: %w", base)

	assert.True(t, Is(wrapped, CodeStitcherError))
	assert.False(t, Is(wrapped, CodeWaveformError))
}

func TestSentinelsCarryExpectedCodes(t *testing.T) {
	assert.Equal(t, CodeAlreadyOwned, AlreadyOwned.Code)
	assert.Equal(t, CodeEmpty, Empty.Code)
	assert.Equal(t, CodeStopped, Stopped.Code)
}
