// Package persister implements P: uploading artifacts to the correct
// object-storage container by classification and writing the database
// rows that describe them.
package persister

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/techresidents/archivesvc/internal/apierrors"
	"github.com/techresidents/archivesvc/internal/archivestream"
	"github.com/techresidents/archivesvc/internal/models"
	"github.com/techresidents/archivesvc/internal/storagepool"
)

// Persister uploads streams to the public or private container and
// records them in a single database transaction.
type Persister struct {
	public  *storagepool.Pool
	private *storagepool.Pool
	local   *storagepool.Pool
	store   Store
}

// New constructs a Persister. local is the working-directory pool where
// stitcher/waveform output currently resides; public/private are the
// two destination object-storage pools.
func New(public, private, local *storagepool.Pool, store Store) *Persister {
	return &Persister{public: public, private: private, local: local, store: store}
}

// Persist uploads every stream to its destination container (skipping
// upload when the destination already has the object) and writes one
// ChatArchive row plus its ChatArchiveUser rows per stream, all in a
// single transaction.
func (p *Persister) Persist(ctx context.Context, sessionID int64, streams []*archivestream.Stream) error {
	records := make([]Record, 0, len(streams))

	for _, stream := range streams {
		public := stream.Type == archivestream.TypeStitchedAudio

		if err := p.upload(ctx, stream, public); err != nil {
			return err
		}

		typeID, err := p.store.LookupTypeID(string(stream.Type))
		if err != nil {
			return apierrors.Persister(fmt.Sprintf("unknown archive type %s", stream.Type), err)
		}
		mimeTypeID, err := p.store.LookupMimeTypeID(filepath.Ext(stream.Filename))
		if err != nil {
			return apierrors.Persister(fmt.Sprintf("unknown mime type for %s", stream.Filename), err)
		}

		records = append(records, Record{
			Archive: &models.ChatArchive{
				SessionID:  sessionID,
				TypeID:     typeID,
				Path:       stream.Filename,
				MimeTypeID: mimeTypeID,
				Public:     public,
				LengthMS:   stream.LengthMS,
				OffsetMS:   stream.OffsetMS,
			},
			UserIDs: stream.Users,
		})
	}

	if err := p.store.InsertAll(records); err != nil {
		return apierrors.Persister("failed to persist chat archive rows", err)
	}

	return nil
}

func (p *Persister) upload(ctx context.Context, stream *archivestream.Stream, public bool) error {
	destPool := p.private
	if public {
		destPool = p.public
	}

	dest, release, err := destPool.Get(ctx)
	if err != nil {
		return apierrors.Persister("failed to acquire destination storage handle", err)
	}
	defer release()

	exists, err := dest.Exists(ctx, stream.Filename)
	if err != nil {
		return apierrors.Persister(fmt.Sprintf("failed to check existence of %s", stream.Filename), err)
	}
	if exists {
		return nil
	}

	local, releaseLocal, err := p.local.Get(ctx)
	if err != nil {
		return apierrors.Persister("failed to acquire local storage handle", err)
	}
	defer releaseLocal()

	rc, err := local.Open(ctx, stream.Filename)
	if err != nil {
		return apierrors.Persister(fmt.Sprintf("failed to open local artifact %s", stream.Filename), err)
	}
	saveErr := dest.Save(ctx, stream.Filename, rc)
	rc.Close()
	if saveErr != nil {
		return apierrors.Persister(fmt.Sprintf("failed to upload %s", stream.Filename), saveErr)
	}

	return nil
}
