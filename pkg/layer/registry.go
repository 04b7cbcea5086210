package layer

import (
	"context"
	"sync"
)

// ReaderToken pins a layer open on behalf of one reader. Release it exactly
// once; extra calls are ignored.
type ReaderToken struct {
	reg  *TokenRegistry
	ep   *epoch
	once sync.Once
}

// Release signals that the reader holding the token is done.
func (t *ReaderToken) Release() {
	t.once.Do(func() {
		t.reg.release(t.ep)
	})
}

// epoch groups the readers that started between two write barriers. It is
// drained once it has been sealed and every member released its token.
type epoch struct {
	refs   int
	sealed bool
	done   chan struct{}
}

// TokenRegistry is the reader bookkeeping shared by layer implementations.
// Acquire never blocks. Barrier seals the current epoch and waits for it
// (and any earlier, still-draining epoch), which is exactly the isolation a
// writer needs: readers that predate the barrier finish against the old
// view before the writer's caller regains control.
type TokenRegistry struct {
	mu      sync.Mutex
	current *epoch
	pending []*epoch
	closed  bool
}

func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{current: newEpoch()}
}

func newEpoch() *epoch {
	return &epoch{done: make(chan struct{})}
}

// Acquire returns a token for the current epoch, or nil once the registry
// has been closed.
func (r *TokenRegistry) Acquire() *ReaderToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.current.refs++
	return &ReaderToken{reg: r, ep: r.current}
}

func (r *TokenRegistry) release(e *epoch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	if e.refs == 0 && e.sealed {
		close(e.done)
	}
}

// Barrier seals the current epoch, opens a fresh one, and blocks until all
// sealed epochs have drained. Readers joining after the call are unaffected
// and never waited on.
func (r *TokenRegistry) Barrier(ctx context.Context) error {
	r.mu.Lock()
	e := r.current
	e.sealed = true
	if e.refs == 0 {
		close(e.done)
	}
	r.pending = append(r.pending, e)
	r.current = newEpoch()
	waiting := make([]*epoch, len(r.pending))
	copy(waiting, r.pending)
	r.mu.Unlock()

	for _, ep := range waiting {
		select {
		case <-ep.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	r.prunePending()
	r.mu.Unlock()
	return nil
}

// CloseAndDrain marks the registry closed, so Acquire returns nil from here
// on, and waits for every outstanding token.
func (r *TokenRegistry) CloseAndDrain(ctx context.Context) error {
	r.mu.Lock()
	alreadyClosed := r.closed
	r.closed = true
	r.mu.Unlock()
	if alreadyClosed {
		return nil
	}
	return r.Barrier(ctx)
}

// Closed reports whether CloseAndDrain has begun.
func (r *TokenRegistry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// prunePending drops drained epochs; caller holds mu.
func (r *TokenRegistry) prunePending() {
	kept := r.pending[:0]
	for _, ep := range r.pending {
		select {
		case <-ep.done:
		default:
			kept = append(kept, ep)
		}
	}
	r.pending = kept
}
