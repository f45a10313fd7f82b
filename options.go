package tether

import (
	"time"

	"github.com/google/uuid"

	"github.com/RandomStudio/tether/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultDisconnectTimeout = 250 * time.Millisecond
	defaultQoS               = byte(1)
	maxQoS                   = byte(2)
)

type agentOptions struct {
	client            BrokerClient
	logger            Logger
	username          string
	password          string
	clientID          string
	basePath          string
	connectTimeout    time.Duration
	disconnectTimeout time.Duration
	errorSink         func(error)
	metrics           *Metrics
}

func defaultAgentOptions() agentOptions {
	return agentOptions{
		logger:            nopLogger{},
		username:          config.DefaultUsername,
		password:          config.DefaultPassword,
		clientID:          uuid.NewString(),
		connectTimeout:    defaultConnectTimeout,
		disconnectTimeout: defaultDisconnectTimeout,
	}
}

// Option configures an Agent.
type Option func(*agentOptions)

// WithBrokerClient replaces the default paho-backed client.
func WithBrokerClient(c BrokerClient) Option {
	return func(o *agentOptions) { o.client = c }
}

// WithLogger sets the agent's logger. Defaults to discarding all records.
func WithLogger(l Logger) Option {
	return func(o *agentOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithCredentials overrides the default broker username and password.
func WithCredentials(username, password string) Option {
	return func(o *agentOptions) {
		o.username = username
		o.password = password
	}
}

// WithClientID sets the MQTT client identifier used by the default client.
// A random UUID is used otherwise.
func WithClientID(id string) Option {
	return func(o *agentOptions) {
		if id != "" {
			o.clientID = id
		}
	}
}

// WithBasePath appends a path to the broker address, as needed by
// websocket listeners (for example "/ws").
func WithBasePath(path string) Option {
	return func(o *agentOptions) { o.basePath = path }
}

// WithConnectTimeout bounds the broker handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *agentOptions) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithDisconnectTimeout bounds the graceful disconnect.
func WithDisconnectTimeout(d time.Duration) Option {
	return func(o *agentOptions) {
		if d > 0 {
			o.disconnectTimeout = d
		}
	}
}

// WithErrorSink receives asynchronous failures: connection losses and
// recovered handler panics.
func WithErrorSink(fn func(error)) Option {
	return func(o *agentOptions) { o.errorSink = fn }
}

// WithMetrics makes the agent update m.
func WithMetrics(m *Metrics) Option {
	return func(o *agentOptions) { o.metrics = m }
}

type plugOptions struct {
	qos    byte
	retain bool
	role   string
	id     string
	topic  string
}

// PlugOption customises a plug at creation.
type PlugOption func(*plugOptions)

// WithQoS sets the plug's QoS level (0, 1 or 2). Defaults to 1.
func WithQoS(qos byte) PlugOption {
	return func(o *plugOptions) { o.qos = qos }
}

// WithRetain makes an output plug publish retained messages.
// Ignored for input plugs.
func WithRetain(retain bool) PlugOption {
	return func(o *plugOptions) { o.retain = retain }
}

// WithRole overrides the agent-type segment: the agent's own type for
// outputs, the '+' wildcard for inputs.
func WithRole(role string) PlugOption {
	return func(o *plugOptions) { o.role = role }
}

// WithID overrides the agent-ID segment: the agent's own ID for outputs,
// the '+' wildcard for inputs.
func WithID(id string) PlugOption {
	return func(o *plugOptions) { o.id = id }
}

// WithTopic replaces the generated topic entirely. Outputs need a concrete
// topic; inputs accept any valid filter such as "#". Takes precedence over
// WithRole and WithID.
func WithTopic(topic string) PlugOption {
	return func(o *plugOptions) { o.topic = topic }
}
