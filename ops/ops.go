// Package ops tracks the three long-lived execution contexts a Host runs
// (Receiver, Transmitter, TickCoordinator) plus the per-tick and
// per-datagram operations nested under them, and reports each one's
// success or failure to structured logging once it ends. An Op is assumed
// successful unless FailIf was called with a non-nil error before End.
package ops

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/tickloop/lockstep/opctx"
)

var (
	cm             = opctx.NewManager()
	reporters      []Reporter
	reportersMutex sync.RWMutex
)

// Reporter receives the outcome of an Op when it ends. failure is nil for a
// successful Op; ctx carries whatever the Op (and its ancestors, and any
// globals) were tagged with via Set/SetGlobal.
type Reporter func(failure error, ctx map[string]interface{})

// LogrusReporter adapts a Reporter to logrus: failed ops are logged at warn
// with the error attached, successful ones at debug. Register it with
// RegisterReporter so the ops.Begin/End calls scattered through the
// Receiver/Transmitter/TickCoordinator loops surface somewhere real instead
// of being tracked and discarded.
func LogrusReporter(log *logrus.Logger) Reporter {
	return func(failure error, fields map[string]interface{}) {
		entry := log.WithFields(logrus.Fields(fields))
		if failure != nil {
			entry.WithError(failure).Warn("op failed")
			return
		}
		entry.Debug("op completed")
	}
}

// RegisterReporter adds a Reporter invoked on every Op.End from then on.
func RegisterReporter(reporter Reporter) {
	reportersMutex.Lock()
	reporters = append(reporters, reporter)
	reportersMutex.Unlock()
}

// SetGlobal tags every Op, in every execution context, with key->value —
// used for host-wide identity (e.g. the local HostID) rather than anything
// tick- or peer-specific.
func SetGlobal(key string, value interface{}) {
	cm.PutGlobal(key, value)
}

// Op is one tracked unit of work: a Receiver/Transmitter/TickCoordinator
// run, or a tick/datagram nested under one.
type Op interface {
	// Begin starts a child Op nested under this one.
	Begin(name string) Op

	// Set tags this Op's context with key->value, inherited by any children
	// started after the call.
	Set(key string, value interface{}) Op

	// FailIf marks this Op failed if err is non-nil; the latest non-nil err
	// wins if called more than once. Returns err unchanged for chaining.
	FailIf(err error) error

	// End reports this Op's outcome to every registered Reporter, then
	// detaches it.
	End()
}

type op struct {
	ctx     opctx.Context
	name    string
	failure atomic.Value // always holds a failureBox
}

// failureBox gives every stored failure the same concrete type, which
// atomic.Value requires across Store calls.
type failureBox struct{ err error }

// Begin starts a new root Op, named for the execution context it tracks
// (e.g. "receiver.run").
func Begin(name string) Op {
	return &op{ctx: cm.Enter().Put("op", name), name: name}
}

func (o *op) Begin(name string) Op {
	return &op{ctx: o.ctx.Enter().Put("op", name).PutIfAbsent("root_op", o.name), name: name}
}

func (o *op) Set(key string, value interface{}) Op {
	o.ctx.Put(key, value)
	return o
}

func (o *op) FailIf(err error) error {
	if err != nil {
		o.failure.Store(failureBox{err})
	}
	return err
}

func (o *op) End() {
	reportersMutex.RLock()
	reportersCopy := make([]Reporter, len(reporters))
	copy(reportersCopy, reporters)
	reportersMutex.RUnlock()

	if len(reportersCopy) > 0 {
		var failure error
		if box, ok := o.failure.Load().(failureBox); ok {
			failure = box.err
		}
		ctx := o.ctx.AsMap(failure, true)
		if failure != nil {
			if _, errorSet := ctx["error"]; !errorSet {
				ctx["error"] = failure.Error()
			}
		}
		for _, reporter := range reportersCopy {
			reporter(failure, ctx)
		}
	}

	o.ctx.Exit()
}
