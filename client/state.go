// Package client implements the resilient connection client: a state machine
// owning one transport connection, a bounded sender queue, a receiver loop, a
// keepalive monitor, and a reconnect supervisor, all coordinated through the
// session cancellation scope.
package client

// State is the connection state. Exactly one state holds at any instant;
// transitions are serialized by the client's mutex.
type State uint8

const (
	// Disconnected is the initial and resting state. Connect is only legal here.
	Disconnected State = iota
	// Connecting covers the dial/retry/handshake phase.
	Connecting
	// Connected means the transport is up and the background loops run.
	Connected
	// Disconnecting covers the graceful shutdown handshake.
	Disconnecting
	// Faulted is entered on an unrecoverable protocol or configuration error.
	// Recovery requires an explicit Disconnect followed by Connect.
	Faulted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	case Faulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}
