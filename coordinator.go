package lockstep

import (
	"context"
	"sort"
	"time"

	"github.com/aristanetworks/goarista/monotime"
	"github.com/sirupsen/logrus"
	"github.com/tickloop/lockstep/ops"
)

// TickCoordinator runs the local simulation's tick loop:
// CollectLocal -> WaitBarrier -> ExecuteFrame -> Sleep -> CollectLocal. It is
// the only consumer (Pop) of ReceiveQueues and the only enqueuer of
// SendQueues.
type TickCoordinator struct {
	localID      HostID
	currentFrame FrameNumber

	localQueue    ReceiveQueue
	remoteQueues  map[HostID]ReceiveQueue
	sendQueues    map[HostID]*SendQueue
	barrier       *Barrier
	execOrder     []HostID // localID plus every peer, sorted, fixed at construction

	app            Application
	interframeTime time.Duration

	log *logrus.Entry
}

// NewTickCoordinator assembles a TickCoordinator. peers must not include
// localID; sendQueues must have exactly one entry per peer (never one for
// localID — the loopback input never touches the wire).
func NewTickCoordinator(
	localID HostID,
	peers []HostID,
	firstFrame FrameNumber,
	localQueue ReceiveQueue,
	remoteQueues map[HostID]ReceiveQueue,
	sendQueues map[HostID]*SendQueue,
	barrier *Barrier,
	app Application,
	interframeTime time.Duration,
	log *logrus.Logger,
) *TickCoordinator {
	order := make([]HostID, 0, len(peers)+1)
	order = append(order, localID)
	order = append(order, peers...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	if log == nil {
		log = logrus.New()
	}
	return &TickCoordinator{
		localID:        localID,
		currentFrame:   firstFrame,
		localQueue:     localQueue,
		remoteQueues:   remoteQueues,
		sendQueues:     sendQueues,
		barrier:        barrier,
		execOrder:      order,
		app:            app,
		interframeTime: interframeTime,
		log:            log.WithField("component", "coordinator"),
	}
}

// Bootstrap primes the pipeline by asking the application for k >= 0
// priming commands, pushing each to the local ReceiveQueue and enqueuing
// each on every peer's SendQueue, and advancing currentFrame by k. It must
// be called exactly once, before Run.
func (c *TickCoordinator) Bootstrap() {
	primed := c.app.FillCommands()
	for _, cmd := range primed {
		input := FrameInput{Frame: c.currentFrame, Command: cmd}
		c.localQueue.Push(input)
		for _, sq := range c.sendQueues {
			sq.Enqueue(input)
		}
		c.currentFrame++
	}
}

// Run executes ticks until ctx is done or a suspended wait is cancelled.
func (c *TickCoordinator) Run(ctx context.Context) error {
	op := ops.Begin("coordinator.run")
	defer op.End()

	for {
		if ctx.Err() != nil {
			return nil
		}

		tickStart := monotime.Now()
		tickOp := op.Begin("coordinator.tick").Set("frame", int64(c.currentFrame))

		c.collectLocal()

		if err := c.waitBarrier(ctx); err != nil {
			tickOp.FailIf(err)
			tickOp.End()
			op.FailIf(err)
			return err
		}

		c.executeFrame()
		tickOp.End()

		c.currentFrame++

		if err := c.sleep(ctx, tickStart); err != nil {
			return err
		}
	}
}

func (c *TickCoordinator) collectLocal() {
	cmd := c.app.ReadInput(c.currentFrame)
	input := FrameInput{Frame: c.currentFrame, Command: cmd}

	c.localQueue.Push(input)
	for _, sq := range c.sendQueues {
		sq.Enqueue(input)
	}
}

func (c *TickCoordinator) waitBarrier(ctx context.Context) error {
	if c.barrier.AllReady() {
		return nil
	}
	c.app.SuspendSimulation()
	if err := c.barrier.Wait(ctx); err != nil {
		return err
	}
	c.app.ResumeSimulation()
	return nil
}

func (c *TickCoordinator) executeFrame() {
	for _, peer := range c.execOrder {
		var rq ReceiveQueue
		if peer == c.localID {
			rq = c.localQueue
		} else {
			rq = c.remoteQueues[peer]
		}

		input, ok := rq.Pop()
		if !ok {
			// The barrier guaranteed readiness; a miss here means a peer's
			// queue regressed between WaitBarrier and this pop, which the
			// single-consumer contract forbids. Log and skip rather than
			// execute a zero-value frame.
			c.log.WithField("peer", peer).Warn("expected head-ready queue was empty at pop")
			continue
		}

		c.app.ExecuteFrame(peer, input)

		if peer != c.localID {
			c.barrier.SetReady(peer, rq.HeadReady())
		}
	}
}

func (c *TickCoordinator) sleep(ctx context.Context, tickStart time.Duration) error {
	elapsed := monotime.Now() - tickStart
	remaining := c.interframeTime - elapsed
	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}
