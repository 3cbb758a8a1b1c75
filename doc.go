// Package lockstep implements the synchronization core of a deterministic
// lockstep multiplayer library: a reliability layer atop an unreliable
// datagram transport that delivers per-tick command inputs from every
// participant to every other participant in strict per-sender order, and a
// frame-advance barrier that holds the local simulation until one input from
// every remote participant is available for the tick about to execute.
//
// The package is built around three long-lived execution contexts that an
// embedding application starts after its own handshake/rendezvous completes:
// a Receiver draining the datagram socket into per-sender ReceiveQueues and
// SendQueue acks, a Transmitter periodically draining SendQueues onto the
// wire, and a TickCoordinator running the local simulation's tick loop. Host
// wires all three together from a HandshakeResult.
//
// Byzantine tolerance, datagram encryption/authentication, NAT traversal,
// dynamic join after simulation start, variable tick rate, and
// rollback/prediction are explicitly out of scope: every host is assumed to
// see identical inputs before advancing.
package lockstep
