package lockstep

import (
	"context"
	"fmt"
	"net"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"github.com/tickloop/lockstep/ops"
)

// maxDatagramSize bounds the read buffer; the reference wire format never
// produces larger datagrams for any sane Config.Capacity.
const maxDatagramSize = 65507

// Receiver is the one execution context that blocks on the datagram socket.
// It is the only writer of ReceiveQueue slots and the only caller of
// SendQueue.OnAck.
type Receiver struct {
	transport Transport
	codec     Codec

	receiveQueues map[HostID]ReceiveQueue
	sendQueues    map[HostID]*SendQueue
	acksOut       *ackOutbox

	log          *logrus.Entry
	suppressLog  *lru.Cache // bounds log volume from a misbehaving/confused peer
	onFatal      func(error)
}

// NewReceiver wires a Receiver over the given transport and codec. The keys
// of receiveQueues (for input batches) and sendQueues (for ack batches) bound
// the set of sender IDs accepted; anything else is a protocol invariant
// violation and escalates to onFatal.
func NewReceiver(
	transport Transport,
	codec Codec,
	receiveQueues map[HostID]ReceiveQueue,
	sendQueues map[HostID]*SendQueue,
	acksOut *ackOutbox,
	log *logrus.Logger,
	onFatal func(error),
) *Receiver {
	suppress, err := lru.New(64)
	if err != nil {
		panic(err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &Receiver{
		transport:     transport,
		codec:         codec,
		receiveQueues: receiveQueues,
		sendQueues:    sendQueues,
		acksOut:       acksOut,
		log:           log.WithField("component", "receiver"),
		suppressLog:   suppress,
		onFatal:       onFatal,
	}
}

// Run blocks reading datagrams until ctx is done or a fatal condition is
// hit. Cancellation works by closing the transport out from under the
// blocking read, per the module's cancellation model: the shared stop flag
// is the context, and each execution context observes it at its next
// suspension point.
func (r *Receiver) Run(ctx context.Context) error {
	op := ops.Begin("receiver.run")
	defer op.End()

	closed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.transport.Close()
		case <-closed:
		}
	}()
	defer close(closed)

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := r.transport.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			op.FailIf(err)
			r.fatal(fmt.Errorf("receiver: socket read: %w", err))
			return err
		}

		msg, err := r.codec.Decode(buf[:n])
		if err != nil {
			r.logMalformed(addr, err)
			continue
		}

		switch msg.Kind {
		case MessageInputs:
			if err := r.handleInputs(op, msg.Inputs); err != nil {
				return err
			}
		case MessageAcks:
			if err := r.handleAcks(op, msg.Acks); err != nil {
				return err
			}
		default:
			r.logMalformed(addr, fmt.Errorf("unrecognized message kind %d", msg.Kind))
		}
	}
}

func (r *Receiver) handleInputs(parent ops.Op, batch *FrameInputBatch) error {
	dispatchOp := parent.Begin("receiver.handle_inputs").
		Set("sender", uint32(batch.SenderID)).
		Set("count", len(batch.Inputs))
	defer dispatchOp.End()

	rq, ok := r.receiveQueues[batch.SenderID]
	if !ok {
		err := fmt.Errorf("%w: sender %d", ErrUnknownPeer, batch.SenderID)
		dispatchOp.FailIf(err)
		r.fatal(err)
		return err
	}
	for _, in := range batch.Inputs {
		if in.Frame < 0 {
			err := fmt.Errorf("%w: %d", ErrInvalidFrame, in.Frame)
			dispatchOp.FailIf(err)
			r.fatal(err)
			return err
		}
	}
	ack := rq.PushBatch(batch.Inputs)
	r.acksOut.set(batch.SenderID, ack)
	return nil
}

func (r *Receiver) handleAcks(parent ops.Op, batch *AckBatch) error {
	dispatchOp := parent.Begin("receiver.handle_acks").
		Set("sender", uint32(batch.SenderID)).
		Set("count", len(batch.Acks))
	defer dispatchOp.End()

	sq, ok := r.sendQueues[batch.SenderID]
	if !ok {
		err := fmt.Errorf("%w: sender %d", ErrUnknownPeer, batch.SenderID)
		dispatchOp.FailIf(err)
		r.fatal(err)
		return err
	}
	for _, ack := range batch.Acks {
		sq.OnAck(ack)
	}
	return nil
}

func (r *Receiver) logMalformed(addr net.Addr, err error) {
	key := err.Error()
	if _, seenRecently := r.suppressLog.Get(key); seenRecently {
		return
	}
	r.suppressLog.Add(key, struct{}{})
	r.log.WithField("addr", addr).WithError(err).Debug("dropping malformed datagram")
}

func (r *Receiver) fatal(err error) {
	r.log.WithError(err).Error("fatal receiver error")
	if r.onFatal != nil {
		r.onFatal(err)
	}
}
