package waveform

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

const bucketCount = 1800

// extractAmplitudes reads a .wav file and partitions it into bucketCount
// equal buckets, each the max absolute-value sample in that window.
// Stereo input is downmixed by taking every other sample of the
// interleaved data (one channel's samples), a coarse, deliberate
// approximation (an average-of-channels downmix would be more accurate
// but isn't what this reproduces).
func extractAmplitudes(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read pcm buffer: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("empty pcm buffer for %s", path)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	maxMagnitude := float64(int64(1) << uint(bitDepth-1))

	var samples []float64
	if channels == 2 {
		for i := 0; i < len(buf.Data); i += 2 {
			samples = append(samples, float64(buf.Data[i])/maxMagnitude)
		}
	} else {
		for _, v := range buf.Data {
			samples = append(samples, float64(v)/maxMagnitude)
		}
	}

	return bucketMaxAbs(samples, bucketCount), nil
}

func bucketMaxAbs(samples []float64, size int) []float64 {
	result := make([]float64, size)
	if len(samples) == 0 {
		return result
	}

	perBucket := len(samples) / size
	if perBucket < 1 {
		perBucket = 1
	}

	for x := 0; x < size; x++ {
		start := x * perBucket
		end := start + perBucket
		if start >= len(samples) {
			break
		}
		if end > len(samples) {
			end = len(samples)
		}

		max := 0.0
		for _, v := range samples[start:end] {
			if v < 0 {
				v = -v
			}
			if v > max {
				max = v
			}
		}
		result[x] = max
	}

	return result
}
