package lockstep

import "net"

// Codec turns batches of FrameInputs/FrameAcks into datagram payloads and
// back. The wire format itself is an external concern (see package wire for
// a reference implementation); the core depends only on this interface.
type Codec interface {
	EncodeInputs(sender HostID, inputs []FrameInput) ([]byte, error)
	EncodeAcks(sender HostID, acks []FrameAck) ([]byte, error)
	Decode(payload []byte) (Message, error)
}

// Transport is the datagram boundary the Receiver and Transmitter use. It is
// satisfied directly by *net.UDPConn and by any net.PacketConn.
type Transport interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	Close() error
}

// Application is the set of callbacks the core consumes from the host
// application. ReadInput and FillCommands must never block indefinitely —
// the tick loop's pacing depends on them returning promptly.
type Application interface {
	// ReadInput returns the local command for the given frame. It must
	// return a value for every tick, even an "idle" command.
	ReadInput(frame FrameNumber) Command

	// ExecuteFrame deterministically applies one participant's command for
	// the frame currently being executed.
	ExecuteFrame(peer HostID, input FrameInput)

	// SuspendSimulation is called when the tick loop is about to block
	// waiting for a remote peer's input.
	SuspendSimulation()

	// ResumeSimulation is called once every remote peer's input for the
	// blocked-on frame has arrived.
	ResumeSimulation()

	// FillCommands returns the priming commands used to establish an initial
	// network pipeline depth before the tick loop starts.
	FillCommands() []Command
}
