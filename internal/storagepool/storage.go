// Package storagepool implements the bounded resource pool of storage
// handles (ST in the component overview) plus its two concrete
// implementations: a local filesystem handle (used as the pipeline's
// working directory, and as the pre-stage download target when a remote
// handle isn't locally addressable) and an S3-backed handle (used for
// the public and private object-storage containers).
package storagepool

import (
	"context"
	"io"
)

// Storage is the contract every pool handle satisfies: existence check,
// open for read, save for write, and delete. Idempotence throughout the
// pipeline is built on Exists.
type Storage interface {
	Exists(ctx context.Context, filename string) (bool, error)
	Open(ctx context.Context, filename string) (io.ReadCloser, error)
	Save(ctx context.Context, filename string, r io.Reader) error
	Delete(ctx context.Context, filename string) error
}

// LocalPathResolver is implemented only by handles addressable on the
// local filesystem. The stitcher and waveform generator's pre-stage use
// this to decide whether streams must be downloaded before external
// tools (which only understand local paths) can run.
type LocalPathResolver interface {
	Path(filename string) string
}
