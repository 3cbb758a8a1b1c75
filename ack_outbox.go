package lockstep

import "sync"

// ackOutbox holds the single latest FrameAck the Receiver has produced for
// each peer, pending pickup by the Transmitter on its next tick. Only the
// latest snapshot matters because each FrameAck is already cumulative —
// sending an older one adds nothing a newer one doesn't already cover.
type ackOutbox struct {
	mu     sync.Mutex
	latest map[HostID]FrameAck
	dirty  map[HostID]bool
}

func newAckOutbox(peers []HostID) *ackOutbox {
	o := &ackOutbox{
		latest: make(map[HostID]FrameAck, len(peers)),
		dirty:  make(map[HostID]bool, len(peers)),
	}
	return o
}

func (o *ackOutbox) set(peer HostID, ack FrameAck) {
	o.mu.Lock()
	o.latest[peer] = ack
	o.dirty[peer] = true
	o.mu.Unlock()
}

// drain returns the pending ack for peer, if any, and clears its dirty bit.
func (o *ackOutbox) drain(peer HostID) (FrameAck, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.dirty[peer] {
		return FrameAck{}, false
	}
	ack := o.latest[peer]
	o.dirty[peer] = false
	return ack, true
}
