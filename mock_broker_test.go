package tether

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memBroker routes publishes between mockClients in memory.
type memBroker struct {
	mu      sync.Mutex
	clients []*mockClient
}

func newMemBroker() *memBroker {
	return &memBroker{}
}

// client returns a new mockClient attached to the broker.
func (b *memBroker) client() *mockClient {
	c := &mockClient{broker: b, subscriptions: make(map[string]byte)}
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.mu.Unlock()
	return c
}

// route delivers one copy to every connected client with a matching
// subscription.
func (b *memBroker) route(topic string, payload []byte) {
	b.mu.Lock()
	clients := make([]*mockClient, len(b.clients))
	copy(clients, b.clients)
	b.mu.Unlock()

	for _, c := range clients {
		if c.wants(topic) {
			c.deliver(topic, payload)
		}
	}
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockConnect struct {
	Address  string
	Username string
	Password string
}

// mockClient implements BrokerClient for testing.
type mockClient struct {
	broker *memBroker

	mu            sync.Mutex
	connected     bool
	connects      []mockConnect
	disconnects   int
	published     []mockPublish
	subscriptions map[string]byte
	subscribeLog  []string
	onDelivery    func(topic string, payload []byte)
	onLost        func(err error)

	connectErr   error
	hangConnect  bool
	connectGate  chan struct{} // when set, Connect succeeds once it is closed
	subscribeErr error
	publishErr   error
}

func (m *mockClient) Connect(ctx context.Context, address, username, password string) error {
	m.mu.Lock()
	m.connects = append(m.connects, mockConnect{Address: address, Username: username, Password: password})
	hang, err, gate := m.hangConnect, m.connectErr, m.connectGate
	m.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *mockClient) Disconnect(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnects++
	m.subscriptions = make(map[string]byte)
	return nil
}

func (m *mockClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	if m.publishErr != nil {
		err := m.publishErr
		m.mu.Unlock()
		return err
	}
	if !m.connected {
		m.mu.Unlock()
		return errors.New("mock: not connected")
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	m.mu.Unlock()

	if m.broker != nil {
		m.broker.route(topic, payload)
	}
	return nil
}

func (m *mockClient) Subscribe(filter string, qos byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeLog = append(m.subscribeLog, filter)
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions[filter] = qos
	return nil
}

func (m *mockClient) Unsubscribe(filter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, filter)
	return nil
}

func (m *mockClient) OnDelivery(fn func(topic string, payload []byte)) {
	m.mu.Lock()
	m.onDelivery = fn
	m.mu.Unlock()
}

func (m *mockClient) OnConnectionLost(fn func(err error)) {
	m.mu.Lock()
	m.onLost = fn
	m.mu.Unlock()
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) wants(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return false
	}
	for filter := range m.subscriptions {
		if Matches(filter, topic) {
			return true
		}
	}
	return false
}

func (m *mockClient) deliver(topic string, payload []byte) {
	m.mu.Lock()
	fn := m.onDelivery
	m.mu.Unlock()
	if fn != nil {
		fn(topic, payload)
	}
}

// SimulateMessage delivers a message as if it arrived from the broker.
func (m *mockClient) SimulateMessage(topic string, payload []byte) {
	m.deliver(topic, payload)
}

// SimulateLoss drops the connection as the transport would.
func (m *mockClient) SimulateLoss(err error) {
	m.mu.Lock()
	m.connected = false
	m.subscriptions = make(map[string]byte)
	fn := m.onLost
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (m *mockClient) setConnectErr(err error) {
	m.mu.Lock()
	m.connectErr = err
	m.mu.Unlock()
}

func (m *mockClient) setSubscribeErr(err error) {
	m.mu.Lock()
	m.subscribeErr = err
	m.mu.Unlock()
}

func (m *mockClient) setPublishErr(err error) {
	m.mu.Lock()
	m.publishErr = err
	m.mu.Unlock()
}

func (m *mockClient) getConnects() []mockConnect {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockConnect(nil), m.connects...)
}

func (m *mockClient) getPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

func (m *mockClient) getSubscribeLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribeLog...)
}

func (m *mockClient) hasSubscription(filter string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscriptions[filter]
	return ok
}

func (m *mockClient) getDisconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}
