package tether

// ConnectionState is the lifecycle state of an Agent's broker connection.
type ConnectionState int

const (
	// StateDisconnected means no connection exists. Initial state.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a handshake is in flight.
	StateConnecting
	// StateConnected means the broker accepted the connection.
	StateConnected
	// StateFailed means the last connection attempt failed.
	StateFailed
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChange describes one transition of the connection state machine.
// Err is set for failed connects and for transport-reported losses.
type StateChange struct {
	From ConnectionState
	To   ConnectionState
	Err  error
}

// Lost reports whether the transition was caused by the transport dropping
// an established connection rather than a caller's Disconnect.
func (c StateChange) Lost() bool {
	return c.From == StateConnected && c.To == StateDisconnected && c.Err != nil
}
