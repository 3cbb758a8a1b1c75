package lockstep

import (
	"context"
	"sync"
)

// Barrier is the synchronization point at which the TickCoordinator waits
// for every remote ReceiveQueue to be head-ready before executing the next
// tick. All per-peer readiness flags are guarded by one mutex and one
// condition variable — never a reassigned boolean another goroutine is
// waiting on, which is the race the design notes call out in the source
// this module generalizes from.
type Barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ready map[HostID]bool
}

// NewBarrier creates a Barrier tracking readiness for exactly the given
// peers, all initially not ready.
func NewBarrier(peers []HostID) *Barrier {
	b := &Barrier{ready: make(map[HostID]bool, len(peers))}
	b.cond = sync.NewCond(&b.mu)
	for _, p := range peers {
		b.ready[p] = false
	}
	return b
}

// NotifierFor returns the callback a ReceiveQueue should invoke whenever its
// head transitions empty→occupied. It marks the peer ready and wakes any
// waiter.
func (b *Barrier) NotifierFor(peer HostID) Notifier {
	return func() { b.SetReady(peer, true) }
}

// SetReady sets one peer's readiness flag directly; used by the
// TickCoordinator immediately after popping a frame, to flip the flag false
// when the next slot isn't occupied (a ReceiveQueue's own notifier only ever
// signals the true transition).
func (b *Barrier) SetReady(peer HostID, ready bool) {
	b.mu.Lock()
	if _, tracked := b.ready[peer]; !tracked {
		b.mu.Unlock()
		return
	}
	changed := b.ready[peer] != ready
	b.ready[peer] = ready
	if changed && ready {
		b.cond.Broadcast()
	}
	b.mu.Unlock()
}

// AllReady reports whether every tracked peer is currently ready, without
// blocking.
func (b *Barrier) AllReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allReadyLocked()
}

func (b *Barrier) allReadyLocked() bool {
	for _, ready := range b.ready {
		if !ready {
			return false
		}
	}
	return true
}

// Wait blocks until every tracked peer is ready or ctx is done, whichever
// comes first.
func (b *Barrier) Wait(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allReadyLocked() {
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-done:
		}
	}()

	for !b.allReadyLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.cond.Wait()
	}
	return nil
}
