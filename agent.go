package tether

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/RandomStudio/tether/internal/infrastructure/config"
	"github.com/RandomStudio/tether/internal/infrastructure/mqtt"
)

var _ BrokerClient = (*mqtt.Client)(nil)

// Identity is the agent's position on the topic hierarchy.
type Identity struct {
	Type string
	ID   string
}

// String returns "type/id".
func (i Identity) String() string {
	return i.Type + topicSeparator + i.ID
}

// Agent owns one broker connection, the plugs created on it and the
// dispatcher routing inbound deliveries to input plugs.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Handlers run on the broker client's delivery goroutine, one at a time,
//     without any agent lock held. A blocking handler stalls delivery.
type Agent struct {
	identity Identity
	label    string
	opts     agentOptions
	client   BrokerClient

	mu      sync.RWMutex
	state   ConnectionState
	address string
	session uint64 // bumped by Disconnect; older output plugs are dead
	outputs []*OutputPlug
	inputs  []*InputPlug // registration order is dispatch order

	listenersMu sync.RWMutex
	listeners   []func(StateChange)
}

// NewAgent creates a disconnected agent. agentType and agentID must be
// non-empty and free of '/', '+' and '#'.
//
// Without WithBrokerClient the agent uses the paho MQTT client.
func NewAgent(agentType, agentID string, opts ...Option) (*Agent, error) {
	if err := ValidateName(agentType); err != nil {
		return nil, fmt.Errorf("%w: agent type: %w", ErrInvalidIdentity, err)
	}
	if err := ValidateName(agentID); err != nil {
		return nil, fmt.Errorf("%w: agent id: %w", ErrInvalidIdentity, err)
	}

	o := defaultAgentOptions()
	for _, opt := range opts {
		opt(&o)
	}

	a := &Agent{
		identity: Identity{Type: agentType, ID: agentID},
		label:    agentType + topicSeparator + agentID,
		opts:     o,
		client:   o.client,
		state:    StateDisconnected,
	}

	if a.client == nil {
		cfg := config.Default().MQTT
		cfg.Broker.ClientID = o.clientID
		c := mqtt.New(cfg)
		c.SetLogger(o.logger)
		a.client = c
	}

	return a, nil
}

// Identity returns the agent's type and ID.
func (a *Agent) Identity() Identity { return a.identity }

// State returns the current connection state.
func (a *Agent) State() ConnectionState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// BrokerURI returns the address of the current or last connection attempt.
func (a *Agent) BrokerURI() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.address
}

// IsConnected reports whether the agent holds a live connection.
func (a *Agent) IsConnected() bool {
	return a.State() == StateConnected
}

// OnStateChange registers fn to be called after every state transition.
// Listeners run synchronously in registration order.
func (a *Agent) OnStateChange(fn func(StateChange)) {
	a.listenersMu.Lock()
	a.listeners = append(a.listeners, fn)
	a.listenersMu.Unlock()
}

// BrokerAddress formats "protocol://host:port" with an optional path suffix.
func BrokerAddress(protocol, host string, port int, basePath string) string {
	addr := fmt.Sprintf("%s://%s:%d", protocol, host, port)
	if basePath != "" {
		if !strings.HasPrefix(basePath, "/") {
			basePath = "/" + basePath
		}
		addr += basePath
	}
	return addr
}

// Connect opens the broker connection at protocol://host:port and blocks
// until the handshake completes, the connect timeout elapses or ctx is done.
//
// Input plugs that survived a transport-reported loss are re-subscribed.
func (a *Agent) Connect(ctx context.Context, protocol, host string, port int) error {
	return a.connect(ctx, BrokerAddress(protocol, host, port, a.opts.basePath), false)
}

// Reconnect repeats the last Connect after a connection loss or failure.
// It fails with ErrNotConnected if the agent was never connected or was
// deliberately disconnected.
func (a *Agent) Reconnect(ctx context.Context) error {
	a.mu.RLock()
	address := a.address
	a.mu.RUnlock()

	if address == "" {
		return fmt.Errorf("%w: no previous connection", ErrNotConnected)
	}
	return a.connect(ctx, address, true)
}

// connect runs the handshake. With resume set it only proceeds if the agent
// still remembers address, so a Disconnect racing with Reconnect wins.
func (a *Agent) connect(ctx context.Context, address string, resume bool) error {
	a.mu.Lock()
	if a.state == StateConnected || a.state == StateConnecting {
		a.mu.Unlock()
		return ErrAlreadyConnected
	}
	if resume && a.address != address {
		a.mu.Unlock()
		return fmt.Errorf("%w: disconnected before reconnect", ErrNotConnected)
	}
	prev := a.state
	a.state = StateConnecting
	a.address = address
	a.mu.Unlock()
	a.notify(StateChange{From: prev, To: StateConnecting})

	a.client.OnDelivery(a.dispatch)
	a.client.OnConnectionLost(a.handleConnectionLost)

	ctx, cancel := context.WithTimeout(ctx, a.opts.connectTimeout)
	defer cancel()

	a.opts.logger.Debug("connecting to broker", "agent", a.label, "broker", address)

	if err := a.client.Connect(ctx, address, a.opts.username, a.opts.password); err != nil {
		err = classifyConnectError(ctx, err)
		a.transition(StateConnecting, StateFailed, err)
		a.opts.logger.Error("broker connection failed", "agent", a.label, "broker", address, "error", err)
		return err
	}

	if !a.transition(StateConnecting, StateConnected, nil) {
		// Disconnect was called while the handshake was in flight.
		_ = a.client.Disconnect(a.opts.disconnectTimeout)
		return fmt.Errorf("%w: disconnected during handshake", ErrNotConnected)
	}

	a.opts.logger.Info("connected to broker", "agent", a.label, "broker", address)
	a.resubscribe()
	return nil
}

// classifyConnectError maps a client failure onto ErrConnectTimeout or
// ErrTransportRefused, keeping the cause in the chain.
func classifyConnectError(ctx context.Context, err error) error {
	var te interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil ||
		(errors.As(err, &te) && te.Timeout()) {
		return fmt.Errorf("%w: %w", ErrConnectTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransportRefused, err)
}

// transition moves from one state to another if the agent is still in from.
func (a *Agent) transition(from, to ConnectionState, err error) bool {
	a.mu.Lock()
	if a.state != from {
		a.mu.Unlock()
		return false
	}
	a.state = to
	a.mu.Unlock()

	a.notify(StateChange{From: from, To: to, Err: err})
	return true
}

func (a *Agent) notify(change StateChange) {
	a.opts.metrics.recordState(a.label, change)

	a.listenersMu.RLock()
	listeners := make([]func(StateChange), len(a.listeners))
	copy(listeners, a.listeners)
	a.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func (a *Agent) resubscribe() {
	a.mu.RLock()
	inputs := make([]*InputPlug, len(a.inputs))
	copy(inputs, a.inputs)
	a.mu.RUnlock()

	for _, p := range inputs {
		if err := a.client.Subscribe(p.def.Topic, p.def.QoS); err != nil {
			err = fmt.Errorf("%w: restoring %q: %w", ErrSubscribeFailed, p.def.Topic, err)
			a.opts.logger.Warn("resubscribe failed", "agent", a.label, "plug", p.def.Name, "error", err)
			a.report(err)
		}
	}
}

// handleConnectionLost is installed as the client's loss callback. Plugs are
// kept so a later Reconnect can restore them.
func (a *Agent) handleConnectionLost(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	if !a.transition(StateConnected, StateDisconnected, err) {
		return
	}
	a.opts.logger.Warn("broker connection lost", "agent", a.label, "error", err)
	a.report(fmt.Errorf("connection lost: %w", err))
}

// Disconnect closes the connection, waiting at most the disconnect timeout,
// and forgets every plug. It is safe to call in any state and more than once.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	prev := a.state
	a.state = StateDisconnected
	a.address = ""
	a.session++
	a.outputs = nil
	a.inputs = nil
	a.mu.Unlock()

	if prev == StateDisconnected {
		return
	}

	if prev == StateConnected {
		if err := a.client.Disconnect(a.opts.disconnectTimeout); err != nil {
			a.opts.logger.Warn("broker disconnect returned error", "agent", a.label, "error", err)
		}
	}

	a.notify(StateChange{From: prev, To: StateDisconnected})
	a.opts.logger.Info("disconnected from broker", "agent", a.label)
}

// CreateOutput registers an output plug. By default it publishes on
// "agentType/agentID/name" with QoS 1 and no retain flag.
func (a *Agent) CreateOutput(name string, opts ...PlugOption) (*OutputPlug, error) {
	def, err := buildDefinition(a.identity, name, DirectionOutput, opts)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateConnected {
		return nil, ErrNotConnected
	}
	for _, p := range a.outputs {
		if p.def.Name == name {
			return nil, fmt.Errorf("%w: output %q", ErrDuplicateName, name)
		}
	}

	plug := &OutputPlug{def: def, agent: a, session: a.session}
	a.outputs = append(a.outputs, plug)

	a.opts.logger.Debug("output plug created", "agent", a.label, "plug", name, "topic", def.Topic)
	return plug, nil
}

// CreateInput registers an input plug and subscribes to its filter,
// "+/+/name" by default. handler may be nil and set later with SetHandler.
//
// The plug is registered before subscribing so retained messages delivered
// during the subscribe reach it. If the broker rejects the subscription the
// registration is rolled back.
func (a *Agent) CreateInput(name string, handler MessageHandler, opts ...PlugOption) (*InputPlug, error) {
	def, err := buildDefinition(a.identity, name, DirectionInput, opts)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.state != StateConnected {
		a.mu.Unlock()
		return nil, ErrNotConnected
	}
	for _, p := range a.inputs {
		if p.def.Name == name {
			a.mu.Unlock()
			return nil, fmt.Errorf("%w: input %q", ErrDuplicateName, name)
		}
	}
	plug := &InputPlug{def: def, handler: handler}
	a.inputs = append(a.inputs, plug)
	a.mu.Unlock()

	if err := a.client.Subscribe(def.Topic, def.QoS); err != nil {
		a.removeInput(plug)
		return nil, fmt.Errorf("%w: %q: %w", ErrSubscribeFailed, def.Topic, err)
	}

	a.opts.logger.Debug("input plug created", "agent", a.label, "plug", name, "filter", def.Topic)
	return plug, nil
}

func (a *Agent) removeInput(plug *InputPlug) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, p := range a.inputs {
		if p == plug {
			a.inputs = append(a.inputs[:i:i], a.inputs[i+1:]...)
			return
		}
	}
}

// Outputs returns the registered output plugs in creation order.
func (a *Agent) Outputs() []*OutputPlug {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*OutputPlug, len(a.outputs))
	copy(out, a.outputs)
	return out
}

// Inputs returns the registered input plugs in registration order.
func (a *Agent) Inputs() []*InputPlug {
	a.mu.RLock()
	defer a.mu.RUnlock()
	in := make([]*InputPlug, len(a.inputs))
	copy(in, a.inputs)
	return in
}

// PublishRaw publishes on an arbitrary concrete topic, bypassing plugs.
// Used to replay recorded traffic.
func (a *Agent) PublishRaw(topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidateConcreteTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return a.publish(topic, payload, qos, retained)
}

func (a *Agent) publish(topic string, payload []byte, qos byte, retained bool) error {
	if a.State() != StateConnected {
		return ErrNotConnected
	}
	return a.send(topic, payload, qos, retained)
}

// publishFrom publishes for an output plug. Plugs created before the last
// Disconnect are no longer part of the agent and fail with ErrNotConnected,
// even once the agent has connected again.
func (a *Agent) publishFrom(p *OutputPlug, payload []byte, qos byte) error {
	a.mu.RLock()
	live := a.state == StateConnected && a.session == p.session
	a.mu.RUnlock()

	if !live {
		return ErrNotConnected
	}
	return a.send(p.def.Topic, payload, qos, p.def.Retain)
}

func (a *Agent) send(topic string, payload []byte, qos byte, retained bool) error {
	if err := a.client.Publish(topic, payload, qos, retained); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return nil
}

// dispatch is installed as the client's delivery callback. Every input whose
// filter matches topic is invoked, in registration order.
func (a *Agent) dispatch(topic string, payload []byte) {
	a.mu.RLock()
	var matched []*InputPlug
	for _, p := range a.inputs {
		if p.Matches(topic) {
			matched = append(matched, p)
		}
	}
	a.mu.RUnlock()

	if len(matched) == 0 {
		a.opts.metrics.recordDropped(a.label)
		a.opts.logger.Debug("delivery matched no input plug", "agent", a.label, "topic", topic)
		return
	}

	for _, p := range matched {
		a.invoke(p, topic, payload)
	}
}

func (a *Agent) invoke(p *InputPlug, topic string, payload []byte) {
	handler := p.currentHandler()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: plug %q on %q: %v", ErrHandlerPanic, p.def.Name, topic, r)
			a.opts.metrics.recordPanic(a.label, p.def.Name)
			a.opts.logger.Error("input handler panic recovered", "agent", a.label, "plug", p.def.Name, "topic", topic, "panic", r)
			a.report(err)
		}
	}()

	a.opts.metrics.recordReceived(a.label, p.def.Name)
	handler(payload, topic)
}

func (a *Agent) report(err error) {
	if a.opts.errorSink != nil {
		a.opts.errorSink(err)
	}
}
