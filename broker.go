package tether

import (
	"context"
	"time"
)

// BrokerClient is the transport an Agent drives.
//
// The default implementation lives in internal/infrastructure/mqtt and wraps
// the paho MQTT client. Tests substitute an in-memory implementation.
//
// Implementations must deliver messages for every active subscription to the
// callback registered with OnDelivery, one at a time and in arrival order,
// and must report unexpected connection loss through OnConnectionLost.
// A caller's own Disconnect must not be reported as a loss.
type BrokerClient interface {
	// Connect performs the handshake against address ("scheme://host:port")
	// and blocks until it completes, fails or ctx is done.
	Connect(ctx context.Context, address, username, password string) error

	// Disconnect closes the connection, waiting at most timeout for
	// in-flight work to drain.
	Disconnect(timeout time.Duration) error

	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(filter string, qos byte) error
	Unsubscribe(filter string) error

	// OnDelivery installs the single callback receiving all inbound messages.
	OnDelivery(fn func(topic string, payload []byte))

	// OnConnectionLost installs the callback for transport-reported losses.
	OnConnectionLost(fn func(err error))

	IsConnected() bool
}

// Logger is the logging surface used by the agent.
// Compatible with *slog.Logger and the logging package's Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
