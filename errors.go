package tether

import "errors"

// Errors returned by Agent and plug operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyConnected is returned by Connect while the agent is
	// connected or a connection attempt is in flight.
	ErrAlreadyConnected = errors.New("tether: agent already connected")

	// ErrTransportRefused is returned when the broker rejects the handshake
	// or the network connection cannot be established.
	ErrTransportRefused = errors.New("tether: broker refused connection")

	// ErrConnectTimeout is returned when the handshake does not complete in time.
	ErrConnectTimeout = errors.New("tether: connect timed out")

	// ErrNotConnected is returned by plug creation and publishing while the
	// agent has no live connection.
	ErrNotConnected = errors.New("tether: agent not connected")

	// ErrInvalidName is returned for empty names or names containing
	// '/', '+' or '#'.
	ErrInvalidName = errors.New("tether: invalid name")

	// ErrInvalidIdentity is returned by NewAgent for an unusable agent type or ID.
	ErrInvalidIdentity = errors.New("tether: invalid agent identity")

	// ErrInvalidTopic is returned for malformed custom topics and filters.
	ErrInvalidTopic = errors.New("tether: invalid topic")

	// ErrDuplicateName is returned when a plug with the same name and
	// direction already exists on the agent.
	ErrDuplicateName = errors.New("tether: duplicate plug name")

	// ErrSubscribeFailed is returned when the broker does not accept an
	// input plug's subscription.
	ErrSubscribeFailed = errors.New("tether: subscribe failed")

	// ErrTransport wraps broker client failures while publishing.
	ErrTransport = errors.New("tether: transport error")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("tether: invalid QoS level (must be 0, 1, or 2)")

	// ErrHandlerPanic is reported to the error sink when an input handler panics.
	ErrHandlerPanic = errors.New("tether: input handler panicked")
)
