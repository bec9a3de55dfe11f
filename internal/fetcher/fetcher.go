package fetcher

import (
	"bytes"
	"context"
	"fmt"

	"github.com/techresidents/archivesvc/internal/apierrors"
	"github.com/techresidents/archivesvc/internal/archivestream"
	"github.com/techresidents/archivesvc/internal/storagepool"
)

// Fetcher downloads a session's recordings from a Provider into a local
// storage pool, producing a sorted Manifest the rest of the pipeline
// operates on.
type Fetcher struct {
	provider Provider
	local    *storagepool.Pool
}

// New constructs a Fetcher over a provider and the local storage pool
// used as the pipeline's working directory.
func New(provider Provider, local *storagepool.Pool) *Fetcher {
	return &Fetcher{provider: provider, local: local}
}

// Fetch lists a session's recordings, downloads any not already present
// locally, and returns the manifest sorted by offset. An empty manifest
// (nil error, no streams) is the "no archive" case the pipeline
// short-circuits on.
func (f *Fetcher) Fetch(ctx context.Context, sessionID int64, data []byte, baseName string) (*archivestream.Manifest, error) {
	raw, refs, err := f.provider.ListRecordings(ctx, sessionID, data)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return &archivestream.Manifest{}, nil
	}

	storage, release, err := f.local.Get(ctx)
	if err != nil {
		return nil, apierrors.Fetcher("failed to acquire local storage handle", err)
	}
	defer release()

	if len(raw) > 0 {
		manifestFilename := fmt.Sprintf("%s-%d.manifest", baseName, sessionID)
		if err := storage.Save(ctx, manifestFilename, bytes.NewReader(raw)); err != nil {
			return nil, apierrors.Fetcher("failed to save provider manifest", err)
		}
	}

	streams := make([]*archivestream.Stream, 0, len(refs))
	for _, ref := range refs {
		filename := fmt.Sprintf("%s-%s%s", baseName, ref.CallID, ref.Extension)

		exists, err := storage.Exists(ctx, filename)
		if err != nil {
			return nil, apierrors.Fetcher(fmt.Sprintf("failed to check existence of %s", filename), err)
		}
		if !exists {
			rc, err := f.provider.FetchRecording(ctx, ref)
			if err != nil {
				if _, ok := err.(*ErrRecordingMissing); ok {
					return nil, apierrors.Fetcher(fmt.Sprintf("recording %s missing at provider", ref.CallID), err)
				}
				return nil, err
			}
			saveErr := storage.Save(ctx, filename, rc)
			rc.Close()
			if saveErr != nil {
				return nil, apierrors.Fetcher(fmt.Sprintf("failed to save recording %s", filename), saveErr)
			}
		}

		streams = append(streams, &archivestream.Stream{
			Filename: filename,
			Type:     ref.Type,
			LengthMS: ref.LengthMS,
			Users:    ref.UserIDs,
			OffsetMS: ref.OffsetMS,
		})
	}

	manifest := &archivestream.Manifest{Streams: streams}
	manifest.Sort()
	return manifest, nil
}

// Delete removes a session's recordings at the provider. Idempotent.
func (f *Fetcher) Delete(ctx context.Context, sessionID int64, data []byte) error {
	return f.provider.DeleteRecordings(ctx, sessionID, data)
}
