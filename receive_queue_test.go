package lockstep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueues(capacity int, base FrameNumber, notify Notifier) []ReceiveQueue {
	return []ReceiveQueue{
		NewRingReceiveQueue(capacity, base, notify),
		NewMapReceiveQueue(capacity, base, notify),
	}
}

func in(n FrameNumber) FrameInput { return FrameInput{Frame: n, Command: Command("x")} }

// S1: in-order push/pop.
func TestReceiveQueueInOrder(t *testing.T) {
	for _, q := range newTestQueues(8, 0, nil) {
		var lastAck FrameAck
		for _, n := range []FrameNumber{0, 1, 2, 3} {
			lastAck = q.Push(in(n))
		}
		assert.Equal(t, FrameNumber(3), lastAck.Cumulative)
		assert.Empty(t, lastAck.Selective)

		for _, want := range []FrameNumber{0, 1, 2, 3} {
			got, ok := q.Pop()
			require.True(t, ok)
			assert.Equal(t, want, got.Frame)
		}
		assert.Equal(t, FrameNumber(4), q.Base())
	}
}

// S2: reorder push sequence 2,0,1,4,3 with the exact cumulative/selective
// snapshots named in the spec.
func TestReceiveQueueReorder(t *testing.T) {
	for _, q := range newTestQueues(8, 0, nil) {
		type want struct {
			cumulative FrameNumber
			selective  []FrameNumber
		}
		seq := []FrameNumber{2, 0, 1, 4, 3}
		wants := []want{
			{cumulative: -1, selective: []FrameNumber{2}},
			{cumulative: 0, selective: []FrameNumber{2}},
			{cumulative: 2, selective: nil},
			{cumulative: 2, selective: []FrameNumber{4}},
			{cumulative: 4, selective: nil},
		}
		for i, n := range seq {
			ack := q.Push(in(n))
			assert.Equal(t, wants[i].cumulative, ack.Cumulative, "push %d", n)
			assert.Equal(t, wants[i].selective, ack.Selective, "push %d", n)
		}
		for _, want := range []FrameNumber{0, 1, 2, 3, 4} {
			got, ok := q.Pop()
			require.True(t, ok)
			assert.Equal(t, want, got.Frame)
		}
	}
}

// S3: duplicate pushes collapse to a single pop.
func TestReceiveQueueDuplicate(t *testing.T) {
	for _, q := range newTestQueues(8, 0, nil) {
		q.Push(in(0))
		q.Push(in(0))
		q.Push(in(0))

		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, FrameNumber(0), got.Frame)

		_, ok = q.Pop()
		assert.False(t, ok)
	}
}

// S4: a frame outside the acceptance window never mutates state.
func TestReceiveQueueOutOfWindow(t *testing.T) {
	for _, q := range newTestQueues(4, 0, nil) {
		ack := q.Push(in(5))
		assert.Equal(t, NoFrame, ack.Cumulative)
		assert.Empty(t, ack.Selective)
		assert.False(t, q.HeadReady())
		assert.Equal(t, FrameNumber(0), q.Base())
	}
}

func TestReceiveQueueIdempotence(t *testing.T) {
	for _, q := range newTestQueues(8, 0, nil) {
		first := q.Push(in(3))
		second := q.Push(in(3))
		assert.Equal(t, first.Cumulative, second.Cumulative)
		assert.Equal(t, first.Selective, second.Selective)
	}
}

func TestReceiveQueueNotifierFiresOnHeadTransitions(t *testing.T) {
	for _, variant := range []string{"ring", "map"} {
		notifyCount := 0
		notify := func() { notifyCount++ }
		var q ReceiveQueue
		if variant == "ring" {
			q = NewRingReceiveQueue(4, 0, notify)
		} else {
			q = NewMapReceiveQueue(4, 0, notify)
		}

		q.Push(in(1)) // not head, no notify
		assert.Equal(t, 0, notifyCount, variant)

		q.Push(in(0)) // fills head, notify once
		assert.Equal(t, 1, notifyCount, variant)

		q.Pop() // advances base to 1, which is already occupied -> notify
		assert.Equal(t, 2, notifyCount, variant)

		q.Pop() // advances base to 2, empty -> no notify
		assert.Equal(t, 2, notifyCount, variant)
	}
}

func TestReceiveQueueAckDoesNotMutate(t *testing.T) {
	for _, q := range newTestQueues(8, 0, nil) {
		q.Push(in(1))
		before := q.Ack()
		after := q.Ack()
		assert.Equal(t, before, after)
	}
}
