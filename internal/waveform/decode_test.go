package waveform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketMaxAbsPicksMaxMagnitudePerBucket(t *testing.T) {
	samples := []float64{0.1, -0.9, 0.2, 0.3, -0.4, 0.05}
	result := bucketMaxAbs(samples, 2)

	assert.Equal(t, 2, len(result))
	assert.Equal(t, 0.9, result[0])
	assert.Equal(t, 0.4, result[1])
}

func TestBucketMaxAbsHandlesEmptyInput(t *testing.T) {
	result := bucketMaxAbs(nil, 4)
	assert.Equal(t, []float64{0, 0, 0, 0}, result)
}

func TestRoundTo4DecimalsRoundsToNearest(t *testing.T) {
	out := roundTo4Decimals([]float64{0.123456, 1.0, 0.00001})
	assert.Equal(t, []float64{0.1235, 1.0, 0.0}, out)
}
