package storagepool

import "context"

// Pool is a bounded, semaphore-guarded queue of preconstructed Storage
// handles, implemented as a buffered channel: acquiring blocks when
// every handle is checked out, and the release always returns the handle
// regardless of how the caller's scope exits.
type Pool struct {
	handles chan Storage
}

// NewPool constructs a pool over an already-built set of handles. The
// pool's bound is len(handles); callers size handles to
// storage.pool_size.
func NewPool(handles []Storage) *Pool {
	ch := make(chan Storage, len(handles))
	for _, h := range handles {
		ch <- h
	}
	return &Pool{handles: ch}
}

// Get acquires a handle, blocking until one is free or ctx is done.
// Callers must invoke the returned release func exactly once, typically
// via defer, to guarantee the handle returns to the pool on every exit
// path.
func (p *Pool) Get(ctx context.Context) (Storage, func(), error) {
	select {
	case h := <-p.handles:
		return h, func() { p.handles <- h }, nil
	case <-ctx.Done():
		return nil, func() {}, ctx.Err()
	}
}
