package lockstep

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tickloop/lockstep/ops"
)

// registerOpsReporter guards against piling up a duplicate logrus reporter
// every time a process constructs more than one Host.
var registerOpsReporter sync.Once

// PeerEndpoint names one remote participant and the address its datagrams
// arrive from/are sent to.
type PeerEndpoint struct {
	ID   HostID
	Addr net.Addr
}

// HandshakeResult is everything the out-of-scope TCP handshake hands the
// core before the tick loop starts: participant identity, the agreed first
// frame number, and the fixed peer set for the simulation's lifetime.
type HandshakeResult struct {
	OwnHostID         HostID
	FirstFrameNumber  FrameNumber
	ServerUDPEndpoint net.Addr
	Peers             []PeerEndpoint
}

// Host wires a ReceiveQueue/SendQueue pair per peer, a Barrier, and the
// three execution contexts (Receiver, Transmitter, TickCoordinator) from a
// HandshakeResult. It is the seam an embedding application calls into once
// its handshake/rendezvous has produced a HandshakeResult and a ready
// net.PacketConn.
type Host struct {
	cfg Config
	log *logrus.Logger

	transport Transport

	barrier      *Barrier
	localQueue   ReceiveQueue
	remoteQueues map[HostID]ReceiveQueue
	sendQueues   map[HostID]*SendQueue

	receiver    *Receiver
	transmitter *Transmitter
	coordinator *TickCoordinator

	mu            sync.Mutex
	cancel        context.CancelFunc
	fatalErr      error
	fatalHandlers []func(error)
}

// NewHost constructs every component named in §4 from hs and cfg. The
// ReceiveQueue variant used per peer is the ring variant (NewRingReceiveQueue)
// — the space-optimized, common case; an embedding application wanting the
// bounded-map variant (e.g. for a server-shaped fan-out role) can build its
// queues directly with NewMapReceiveQueue and bypass Host.
func NewHost(cfg Config, hs HandshakeResult, app Application, transport Transport, codec Codec, log *logrus.Logger) *Host {
	if log == nil {
		log = logrus.New()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}

	registerOpsReporter.Do(func() {
		ops.RegisterReporter(ops.LogrusReporter(log))
	})
	ops.SetGlobal("host", hs.OwnHostID)

	peerIDs := make([]HostID, 0, len(hs.Peers))
	peerAddrs := make(map[HostID]net.Addr, len(hs.Peers))
	for _, p := range hs.Peers {
		peerIDs = append(peerIDs, p.ID)
		peerAddrs[p.ID] = p.Addr
	}

	barrier := NewBarrier(peerIDs)

	remoteQueues := make(map[HostID]ReceiveQueue, len(peerIDs))
	sendQueues := make(map[HostID]*SendQueue, len(peerIDs))
	for _, id := range peerIDs {
		remoteQueues[id] = NewRingReceiveQueue(cfg.Capacity, hs.FirstFrameNumber, barrier.NotifierFor(id))
		sendQueues[id] = NewSendQueue(hs.FirstFrameNumber)
	}
	// The local queue never needs to wake the barrier: the coordinator pops
	// it in the same goroutine that pushed it, within the same tick.
	localQueue := NewRingReceiveQueue(cfg.Capacity, hs.FirstFrameNumber, nil)

	acksOut := newAckOutbox(peerIDs)

	h := &Host{
		cfg:          cfg,
		log:          log,
		transport:    transport,
		barrier:      barrier,
		localQueue:   localQueue,
		remoteQueues: remoteQueues,
		sendQueues:   sendQueues,
	}

	h.receiver = NewReceiver(transport, codec, remoteQueues, sendQueues, acksOut, log, h.onFatal)
	h.transmitter = NewTransmitter(
		transport, codec, hs.OwnHostID, sendQueues, peerAddrs, acksOut,
		cfg.transmitInterval(), cfg.RetransmitInterval, log,
	)
	h.coordinator = NewTickCoordinator(
		hs.OwnHostID, peerIDs, hs.FirstFrameNumber,
		localQueue, remoteQueues, sendQueues, barrier, app, cfg.InterframeTime, log,
	)

	return h
}

// OnFatal registers a callback invoked exactly once when a fatal condition
// (§7) tears the Host down. Registering is safe at any time before or
// during Run.
func (h *Host) OnFatal(fn func(error)) {
	h.mu.Lock()
	h.fatalHandlers = append(h.fatalHandlers, fn)
	h.mu.Unlock()
}

func (h *Host) onFatal(err error) {
	h.mu.Lock()
	if h.fatalErr == nil {
		h.fatalErr = err
	}
	handlers := make([]func(error), len(h.fatalHandlers))
	copy(handlers, h.fatalHandlers)
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, fn := range handlers {
		fn(err)
	}
}

// Run primes the tick loop (Bootstrap) and starts all three execution
// contexts, blocking until ctx is cancelled or a fatal condition fires. The
// fatal error, if any, is always returned — it is never swallowed silently.
func (h *Host) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	defer cancel()

	h.coordinator.Bootstrap()

	recvDone := make(chan error, 1)
	transDone := make(chan error, 1)
	go func() { recvDone <- h.receiver.Run(runCtx) }()
	go func() { transDone <- h.transmitter.Run(runCtx) }()

	coordErr := h.coordinator.Run(runCtx)
	cancel()
	<-recvDone
	<-transDone

	h.mu.Lock()
	fatalErr := h.fatalErr
	h.mu.Unlock()
	if fatalErr != nil {
		return fatalErr
	}
	return coordErr
}

// Close sets the shared stop flag and closes the transport. No in-flight
// frames are flushed.
func (h *Host) Close() error {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return h.transport.Close()
}
