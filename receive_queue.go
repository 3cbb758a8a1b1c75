package lockstep

import "sort"

// Notifier is invoked by a ReceiveQueue exactly when its head slot
// transitions empty→occupied, i.e. HeadReady flips from false to true. It
// reports the transition to an injected observer rather than retaining a
// back-reference to a Barrier, per the design notes: queue and barrier are
// decoupled through this callback.
type Notifier func()

// ReceiveQueue reassembles a contiguous prefix of one remote sender's input
// stream: out-of-order pushes are buffered inside an acceptance window,
// cumulative+selective ack snapshots are derived from what has arrived, and
// a single consumer pops frames in strictly increasing order with no gaps.
//
// At most one goroutine may call Pop; any number may call Push/PushBatch
// concurrently with each other and with the single popper.
type ReceiveQueue interface {
	// Push accepts one FrameInput and returns the ack snapshot reflecting
	// the queue's state after this push was applied.
	Push(frame FrameInput) FrameAck

	// PushBatch applies each FrameInput in order and returns the ack
	// snapshot after the last one.
	PushBatch(frames []FrameInput) FrameAck

	// Pop returns the FrameInput at the current base and advances the
	// window by one, or reports not-ready if the head slot is empty.
	Pop() (FrameInput, bool)

	// Ack returns the current ack snapshot without mutating anything.
	Ack() FrameAck

	// HeadReady reports whether the slot at the current base is occupied,
	// without mutating anything.
	HeadReady() bool

	// Base returns the frame number currently at the head slot.
	Base() FrameNumber
}

// orderedFrameSet is a small sorted set of FrameNumbers supporting insertion
// and pop-minimum. Capacity is bounded by the owning queue's window size, so
// a sorted slice with binary-search insertion is simpler and fast enough
// here; no third-party ordered-set type in the dependency surface offers
// anything a hand-rolled heap-of-one-type wouldn't duplicate (see
// DESIGN.md).
type orderedFrameSet struct {
	items []FrameNumber
}

func (s *orderedFrameSet) add(n FrameNumber) {
	i := sort.Search(len(s.items), func(i int) bool { return s.items[i] >= n })
	if i < len(s.items) && s.items[i] == n {
		return
	}
	s.items = append(s.items, 0)
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = n
}

func (s *orderedFrameSet) min() (FrameNumber, bool) {
	if len(s.items) == 0 {
		return 0, false
	}
	return s.items[0], true
}

func (s *orderedFrameSet) popMin() {
	if len(s.items) == 0 {
		return
	}
	s.items = s.items[1:]
}

func (s *orderedFrameSet) contains(n FrameNumber) bool {
	i := sort.Search(len(s.items), func(i int) bool { return s.items[i] >= n })
	return i < len(s.items) && s.items[i] == n
}

func (s *orderedFrameSet) snapshot() []FrameNumber {
	if len(s.items) == 0 {
		return nil
	}
	out := make([]FrameNumber, len(s.items))
	copy(out, s.items)
	return out
}

func (s *orderedFrameSet) len() int {
	return len(s.items)
}
