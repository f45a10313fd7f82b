package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/RandomStudio/tether/internal/infrastructure/config"
)

// Client adapts paho.mqtt.golang to the broker client an Agent drives.
//
// Every subscription is made without a per-topic callback, so paho routes
// all inbound messages to the default publish handler and from there to the
// single delivery callback. Paho's ordered routing means that callback is
// invoked one message at a time, in arrival order.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Auto-reconnect is disabled; a lost connection is reported once
//     through the OnConnectionLost callback.
type Client struct {
	cfg config.MQTTConfig

	client pahomqtt.Client

	// subscriptions tracks active filters and their QoS.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onDelivery func(topic string, payload []byte)
	onLost     func(err error)
	callbackMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New creates a disconnected client. cfg supplies the client ID, keepalive,
// connect timeout and optional Last Will; the broker address and credentials
// are given to Connect.
func New(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:           cfg,
		subscriptions: make(map[string]byte),
	}
}

// Connect establishes a connection to the broker at address
// ("tcp://host:1883", "ws://host:15675/ws", ...).
//
// It blocks until the broker acknowledges the connection, paho's connect
// timeout elapses or ctx is done. A ctx expiry is returned wrapping
// ctx.Err() so callers can tell timeouts from refusals.
func (c *Client) Connect(ctx context.Context, address, username, password string) error {
	opts, err := buildClientOptions(c.cfg, address, username, password)
	if err != nil {
		return err
	}
	configureLWT(opts, c.cfg.Will)

	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.handleMessage(msg.Topic(), msg.Payload())
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.setConnected(true)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	c.client = client
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// handleConnectionLost is called by paho when the connection drops without
// a call to Disconnect.
func (c *Client) handleConnectionLost(err error) {
	c.setConnected(false)

	c.subMu.Lock()
	c.subscriptions = make(map[string]byte)
	c.subMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleMessage forwards a delivery to the registered callback, recovering
// any panic so paho's router goroutine survives.
func (c *Client) handleMessage(topic string, payload []byte) {
	c.callbackMu.RLock()
	callback := c.onDelivery
	c.callbackMu.RUnlock()

	if callback == nil {
		if logger := c.getLogger(); logger != nil {
			logger.Debug("MQTT message without delivery callback", "topic", topic)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT delivery callback panic recovered",
					"topic", topic,
					"panic", r,
				)
			}
		}
	}()

	callback(topic, payload)
}

// Disconnect closes the connection, allowing up to timeout for in-flight
// work to complete. Disconnecting a client that never connected is not an
// error.
func (c *Client) Disconnect(timeout time.Duration) error {
	c.connMu.Lock()
	client := c.client
	c.client = nil
	c.connected = false
	c.connMu.Unlock()

	if client == nil {
		return nil
	}

	client.Disconnect(uint(timeout.Milliseconds()))

	c.subMu.Lock()
	c.subscriptions = make(map[string]byte)
	c.subMu.Unlock()

	return nil
}

// Close disconnects with the configured quiesce period.
func (c *Client) Close() error {
	quiesce := c.cfg.GetDisconnectQuiesce()
	if quiesce <= 0 {
		quiesce = defaultDisconnectQuiesce
	}
	return c.Disconnect(quiesce)
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

func (c *Client) pahoClient() pahomqtt.Client {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.client
}

// OnDelivery sets the callback receiving every inbound message.
func (c *Client) OnDelivery(callback func(topic string, payload []byte)) {
	c.callbackMu.Lock()
	c.onDelivery = callback
	c.callbackMu.Unlock()
}

// OnConnectionLost sets the callback invoked when the connection drops
// unexpectedly. It is not invoked for Disconnect.
func (c *Client) OnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onLost = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection and panic logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
