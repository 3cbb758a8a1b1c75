package lockstep

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// mapReceiveQueue is the fan-out/server-shaped ReceiveQueue variant named in
// the design notes: storage is a bounded map instead of a contiguous ring of
// slices. The ring variant is strictly a space optimization of this one —
// both satisfy identical ordering, ack, and window invariants. Boundedness
// is provided by an LRU cache sized to the acceptance window: correct
// operation never holds more than `capacity` entries (anything outside the
// window or already present is rejected before insertion), so eviction is a
// defensive backstop, not a normal code path.
type mapReceiveQueue struct {
	mu sync.Mutex

	capacity    int
	base        FrameNumber
	lastInOrder FrameNumber
	slots       *lru.Cache
	selective   orderedFrameSet
	notify      Notifier
}

// NewMapReceiveQueue creates the bounded-map ReceiveQueue variant with the
// same contract as NewRingReceiveQueue.
func NewMapReceiveQueue(capacity int, base FrameNumber, notify Notifier) ReceiveQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if notify == nil {
		notify = func() {}
	}
	cache, err := lru.New(capacity)
	if err != nil {
		// lru.New only errors on size <= 0, already guarded above.
		panic(err)
	}
	return &mapReceiveQueue{
		capacity:    capacity,
		base:        base,
		lastInOrder: base - 1,
		slots:       cache,
		notify:      notify,
	}
}

func (q *mapReceiveQueue) Push(frame FrameInput) FrameAck {
	q.mu.Lock()
	headBecameReady := q.pushLocked(frame)
	ack := q.ackLocked()
	q.mu.Unlock()
	if headBecameReady {
		q.notify()
	}
	return ack
}

func (q *mapReceiveQueue) PushBatch(frames []FrameInput) FrameAck {
	q.mu.Lock()
	headBecameReady := false
	for _, f := range frames {
		if q.pushLocked(f) {
			headBecameReady = true
		}
	}
	ack := q.ackLocked()
	q.mu.Unlock()
	if headBecameReady {
		q.notify()
	}
	return ack
}

func (q *mapReceiveQueue) pushLocked(frame FrameInput) bool {
	n := frame.Frame
	if n < q.base || n > q.base+FrameNumber(q.capacity)-1 {
		return false
	}
	if q.slots.Contains(n) {
		return false
	}

	headWasReady := q.slots.Contains(q.base)

	q.slots.Add(n, frame)

	if n == q.lastInOrder+1 {
		q.lastInOrder++
		for {
			next, ok := q.selective.min()
			if !ok || next != q.lastInOrder+1 {
				break
			}
			q.selective.popMin()
			q.lastInOrder++
		}
	} else {
		q.selective.add(n)
	}

	return n == q.base && !headWasReady
}

func (q *mapReceiveQueue) Pop() (FrameInput, bool) {
	q.mu.Lock()
	v, ok := q.slots.Get(q.base)
	if !ok {
		q.mu.Unlock()
		return FrameInput{}, false
	}
	q.slots.Remove(q.base)
	q.base++
	nextReady := q.slots.Contains(q.base)
	q.mu.Unlock()

	if nextReady {
		q.notify()
	}
	return v.(FrameInput), true
}

func (q *mapReceiveQueue) Ack() FrameAck {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ackLocked()
}

func (q *mapReceiveQueue) ackLocked() FrameAck {
	return FrameAck{Cumulative: q.lastInOrder, Selective: q.selective.snapshot()}
}

func (q *mapReceiveQueue) HeadReady() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.slots.Contains(q.base)
}

func (q *mapReceiveQueue) Base() FrameNumber {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.base
}
