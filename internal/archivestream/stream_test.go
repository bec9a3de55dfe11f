package archivestream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeSessionIDUsesUppercaseHex(t *testing.T) {
	assert.Equal(t, "2A", EncodeSessionID(42))
	assert.Equal(t, "0", EncodeSessionID(0))
	assert.Equal(t, "63", EncodeSessionID(99))
}

func TestManifestSortOrdersByOffsetThenFilename(t *testing.T) {
	m := &Manifest{Streams: []*Stream{
		{Filename: "b.mp3", OffsetMS: 100},
		{Filename: "a.mp3", OffsetMS: 100},
		{Filename: "c.mp3", OffsetMS: 50},
	}}
	m.Sort()

	assert.Equal(t, []string{"c.mp3", "a.mp3", "b.mp3"}, []string{
		m.Streams[0].Filename, m.Streams[1].Filename, m.Streams[2].Filename,
	})
}

func TestManifestEmpty(t *testing.T) {
	var nilManifest *Manifest
	assert.True(t, nilManifest.Empty())
	assert.True(t, (&Manifest{}).Empty())
	assert.False(t, (&Manifest{Streams: []*Stream{{Filename: "x"}}}).Empty())
}

func TestUnionUsersDeduplicatesAndSorts(t *testing.T) {
	streams := []*Stream{
		{Users: []int64{12, 11}},
		{Users: []int64{11, 5}},
	}
	assert.Equal(t, []int64{5, 11, 12}, UnionUsers(streams))
}

func TestMinOffsetTreatsMissingAsZero(t *testing.T) {
	streams := []*Stream{
		{OffsetMS: 2380},
		{OffsetMS: 10288},
	}
	assert.Equal(t, 2380, MinOffset(streams))
	assert.Equal(t, 0, MinOffset(nil))
}
