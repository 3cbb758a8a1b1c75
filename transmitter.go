package lockstep

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tickloop/lockstep/ops"
)

// Transmitter is the one execution context that runs a periodic tick,
// draining every peer's SendQueue and emitting datagrams: new sends,
// retransmissions, and any FrameAck the Receiver produced since the last
// tick. It is the only reader of SendQueue drain operations.
type Transmitter struct {
	transport Transport
	codec     Codec
	localID   HostID

	sendQueues map[HostID]*SendQueue
	peerAddrs  map[HostID]net.Addr
	acksOut    *ackOutbox

	interval           time.Duration
	retransmitInterval time.Duration

	log *logrus.Entry
}

// NewTransmitter wires a Transmitter. interval is the wake period (normally
// Config.transmitInterval()); retransmitInterval is the floor passed to
// every SendQueue.DrainForTransmission call.
func NewTransmitter(
	transport Transport,
	codec Codec,
	localID HostID,
	sendQueues map[HostID]*SendQueue,
	peerAddrs map[HostID]net.Addr,
	acksOut *ackOutbox,
	interval, retransmitInterval time.Duration,
	log *logrus.Logger,
) *Transmitter {
	if log == nil {
		log = logrus.New()
	}
	return &Transmitter{
		transport:          transport,
		codec:              codec,
		localID:            localID,
		sendQueues:         sendQueues,
		peerAddrs:          peerAddrs,
		acksOut:            acksOut,
		interval:           interval,
		retransmitInterval: retransmitInterval,
		log:                log.WithField("component", "transmitter"),
	}
}

// Run blocks on a periodic timer until ctx is done.
func (t *Transmitter) Run(ctx context.Context) error {
	op := ops.Begin("transmitter.run")
	defer op.End()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			t.tick(op, now)
		}
	}
}

func (t *Transmitter) tick(parent ops.Op, now time.Time) {
	tickOp := parent.Begin("transmitter.tick").Set("peers", len(t.sendQueues))
	defer tickOp.End()

	for peer, sq := range t.sendQueues {
		addr, ok := t.peerAddrs[peer]
		if !ok {
			continue
		}

		if inputs := sq.DrainForTransmission(now, t.retransmitInterval); len(inputs) > 0 {
			payload, err := t.codec.EncodeInputs(t.localID, inputs)
			if err != nil {
				tickOp.FailIf(err)
				t.log.WithError(err).WithField("peer", peer).Warn("failed to encode frame inputs")
			} else if _, err := t.transport.WriteTo(payload, addr); err != nil {
				tickOp.FailIf(err)
				t.log.WithError(err).WithField("peer", peer).Debug("failed to send frame inputs")
			}
		}

		if ack, pending := t.acksOut.drain(peer); pending {
			payload, err := t.codec.EncodeAcks(t.localID, []FrameAck{ack})
			if err != nil {
				tickOp.FailIf(err)
				t.log.WithError(err).WithField("peer", peer).Warn("failed to encode frame ack")
			} else if _, err := t.transport.WriteTo(payload, addr); err != nil {
				tickOp.FailIf(err)
				t.log.WithError(err).WithField("peer", peer).Debug("failed to send frame ack")
			}
		}
	}
}
