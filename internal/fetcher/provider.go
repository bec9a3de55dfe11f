// Package fetcher implements F: pulling per-participant recordings from
// a third-party provider into the local storage pool and returning a
// sorted Manifest. Provider wire formats are encapsulated behind the
// Provider interface; HTTPProvider is the one concrete implementation
// shipped here.
package fetcher

import (
	"context"
	"io"

	"github.com/techresidents/archivesvc/internal/archivestream"
)

// RecordingRef is one per-participant recording the provider knows
// about for a session, before it has been downloaded.
type RecordingRef struct {
	CallID    string
	UserIDs   []int64
	LengthMS  *int
	OffsetMS  int
	Type      archivestream.Type
	Extension string
}

// Provider is the contract encapsulating a third-party recording
// provider's HTTP API. Exactly one concrete implementation exists today
// (HTTPProvider); the interface exists so a second provider can be added
// without touching the fetcher's orchestration.
type Provider interface {
	// ListRecordings returns the raw provider manifest document and the
	// recording refs it describes. A session with no recordings returns
	// a nil/empty refs slice and nil error (not found is not an error).
	ListRecordings(ctx context.Context, sessionID int64, data []byte) (raw []byte, refs []RecordingRef, err error)
	// FetchRecording downloads one recording's media bytes.
	FetchRecording(ctx context.Context, ref RecordingRef) (io.ReadCloser, error)
	// DeleteRecordings removes all recordings for a session at the
	// provider. Idempotent: no recordings present is success.
	DeleteRecordings(ctx context.Context, sessionID int64, data []byte) error
}

// ErrRecordingMissing is returned by FetchRecording when a known
// recording identifier no longer resolves to media at the provider.
type ErrRecordingMissing struct {
	CallID string
}

func (e *ErrRecordingMissing) Error() string {
	return "recording missing at provider: " + e.CallID
}
