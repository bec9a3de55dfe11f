// Package archivestream holds the in-pipeline stream handle and manifest
// types passed between the fetcher, stitcher, waveform generator and
// persister. None of these are persisted directly; the persister reads
// them to build ChatArchive rows.
package archivestream

import "sort"

// Type classifies an ArchiveStream and determines its destination
// container in the persister: STITCHED_AUDIO is public, everything else
// is private.
type Type string

const (
	TypeUserVideo     Type = "USER_VIDEO"
	TypeUserAudio     Type = "USER_AUDIO"
	TypeStitchedAudio Type = "STITCHED_AUDIO"
)

// Stream is an in-pipeline handle to a media artifact living in a
// storage pool.
type Stream struct {
	Filename         string
	Type             Type
	LengthMS         *int
	Users            []int64
	OffsetMS         int
	WaveformData     []float64
	WaveformFilename string
}

// OffsetOrZero returns OffsetMS, treating an unknown offset as 0.
func (s *Stream) OffsetOrZero() int {
	if s == nil {
		return 0
	}
	return s.OffsetMS
}

// Manifest is the fetcher's output: the per-participant recordings for
// one session, sorted ascending by offset then filename.
type Manifest struct {
	Streams []*Stream
}

// Empty reports whether the manifest has no streams, the "no archive"
// case the pipeline short-circuits on.
func (m *Manifest) Empty() bool {
	return m == nil || len(m.Streams) == 0
}

// Sort orders streams ascending by OffsetMS, ties broken by filename.
func (m *Manifest) Sort() {
	sort.SliceStable(m.Streams, func(i, j int) bool {
		a, b := m.Streams[i], m.Streams[j]
		if a.OffsetMS != b.OffsetMS {
			return a.OffsetMS < b.OffsetMS
		}
		return a.Filename < b.Filename
	})
}

// UnionUsers returns the deduplicated union of user ids across streams,
// used to compute the stitched output's Users field.
func UnionUsers(streams []*Stream) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, s := range streams {
		for _, u := range s.Users {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				out = append(out, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MinOffset returns the smallest OffsetMS across streams, used for the
// stitched output's OffsetMS. Returns 0 for an empty slice.
func MinOffset(streams []*Stream) int {
	if len(streams) == 0 {
		return 0
	}
	min := streams[0].OffsetOrZero()
	for _, s := range streams[1:] {
		if o := s.OffsetOrZero(); o < min {
			min = o
		}
	}
	return min
}
