package lockstep

import "errors"

var (
	// ErrTimeout names a wait that passed a caller-supplied deadline without
	// completing. No function in this package returns it.
	ErrTimeout = errors.New("lockstep: timeout")

	// ErrClosed names an operation attempted after Host.Close. No function in
	// this package returns it; after Close, Host.Run returns the error (if
	// any) from its execution contexts and Close returns the transport's.
	ErrClosed = errors.New("lockstep: closed")

	// ErrUnknownPeer is returned when a datagram names a sender ID outside
	// the peer set fixed at handshake time. It is a protocol-invariant
	// violation, not a transient condition, and escalates to the fatal path.
	ErrUnknownPeer = errors.New("lockstep: unknown peer")

	// ErrInvalidFrame is returned when a decoded frame number is negative.
	// Like ErrUnknownPeer, this escalates to the fatal path.
	ErrInvalidFrame = errors.New("lockstep: invalid frame number")

	// ErrOutOfOrderEnqueue is returned by SendQueue.Enqueue when the supplied
	// frame number does not strictly exceed the last enqueued one.
	ErrOutOfOrderEnqueue = errors.New("lockstep: frame number must exceed last enqueued")
)
