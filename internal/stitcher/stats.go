package stitcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// soxStats is the subset of `sox <file> -n stat` output the normalizer
// needs: RMS amplitude (the volume measure), volume adjustment (the
// clip-safe gain ceiling), and length in seconds.
type soxStats struct {
	RMSAmplitude     float64
	VolumeAdjustment float64
	LengthSeconds    float64
}

// measure runs the stats tool against a stream and parses its output.
// If the tool is unavailable or its output doesn't contain the fields
// the normalizer depends on, this fails loudly rather than silently
// bypassing normalization.
func (s *Stitcher) measure(ctx context.Context, path string) (*soxStats, error) {
	output, err := runTool(ctx, s.soxPath, path, "-n", "stat")
	if err != nil {
		return nil, fmt.Errorf("stats tool failed for %s: %w", path, err)
	}
	return parseSoxStat(output)
}

func parseSoxStat(output string) (*soxStats, error) {
	stats := &soxStats{}
	var sawRMS, sawVolume, sawLength bool

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "Length (seconds):"):
			v, err := parseStatValue(line)
			if err != nil {
				return nil, fmt.Errorf("unparseable stats length: %w", err)
			}
			stats.LengthSeconds = v
			sawLength = true
		case strings.HasPrefix(line, "RMS"):
			v, err := parseStatValue(line)
			if err != nil {
				return nil, fmt.Errorf("unparseable stats RMS amplitude: %w", err)
			}
			stats.RMSAmplitude = v
			sawRMS = true
		case strings.HasPrefix(line, "Volume adjustment:"):
			v, err := parseStatValue(line)
			if err != nil {
				return nil, fmt.Errorf("unparseable stats volume adjustment: %w", err)
			}
			stats.VolumeAdjustment = v
			sawVolume = true
		}
	}

	if !sawRMS || !sawVolume || !sawLength {
		return nil, fmt.Errorf("stats tool output missing expected fields (rms=%v volume=%v length=%v)", sawRMS, sawVolume, sawLength)
	}

	return stats, nil
}

func parseStatValue(line string) (float64, error) {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return 0, fmt.Errorf("no colon in stats line %q", line)
	}
	return strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64)
}
