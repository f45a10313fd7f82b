package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/RandomStudio/tether"
	"github.com/RandomStudio/tether/internal/infrastructure/config"
)

// hub is an in-memory broker shared by loopClients.
type hub struct {
	mu        sync.Mutex
	clients   []*loopClient
	published []hubMessage
}

type hubMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (h *hub) newClient(config.MQTTConfig) tether.BrokerClient {
	return &loopClient{hub: h}
}

func (h *hub) route(msg hubMessage, record bool) {
	h.mu.Lock()
	if record {
		h.published = append(h.published, msg)
	}
	clients := append([]*loopClient(nil), h.clients...)
	h.mu.Unlock()

	for _, c := range clients {
		c.deliverIfMatching(msg.topic, msg.payload)
	}
}

// inject delivers a message as if another agent had published it.
func (h *hub) inject(topic string, payload []byte) {
	h.route(hubMessage{topic: topic, payload: payload}, false)
}

func (h *hub) messages() []hubMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hubMessage(nil), h.published...)
}

func (h *hub) hasSubscription(filter string) bool {
	h.mu.Lock()
	clients := append([]*loopClient(nil), h.clients...)
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		for _, f := range c.filters {
			if f == filter {
				c.mu.Unlock()
				return true
			}
		}
		c.mu.Unlock()
	}
	return false
}

func (h *hub) waitSubscribed(t *testing.T, filter string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !h.hasSubscription(filter) {
		if time.Now().After(deadline) {
			t.Fatalf("no subscription to %q", filter)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type loopClient struct {
	hub *hub

	mu        sync.Mutex
	connected bool
	filters   []string
	deliver   func(topic string, payload []byte)
	onLost    func(error)
}

var errLoopNotConnected = errors.New("loopback: not connected")

func (c *loopClient) Connect(_ context.Context, _, _, _ string) error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	c.hub.clients = append(c.hub.clients, c)
	c.hub.mu.Unlock()
	return nil
}

func (c *loopClient) Disconnect(time.Duration) error {
	c.mu.Lock()
	c.connected = false
	c.filters = nil
	c.mu.Unlock()

	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	for i, other := range c.hub.clients {
		if other == c {
			c.hub.clients = append(c.hub.clients[:i], c.hub.clients[i+1:]...)
			break
		}
	}
	return nil
}

func (c *loopClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if !c.IsConnected() {
		return errLoopNotConnected
	}
	c.hub.route(hubMessage{topic: topic, payload: append([]byte(nil), payload...), qos: qos, retained: retained}, true)
	return nil
}

func (c *loopClient) Subscribe(filter string, _ byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return errLoopNotConnected
	}
	c.filters = append(c.filters, filter)
	return nil
}

func (c *loopClient) Unsubscribe(filter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.filters {
		if f == filter {
			c.filters = append(c.filters[:i], c.filters[i+1:]...)
			break
		}
	}
	return nil
}

func (c *loopClient) OnDelivery(fn func(topic string, payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliver = fn
}

func (c *loopClient) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLost = fn
}

func (c *loopClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *loopClient) deliverIfMatching(topic string, payload []byte) {
	c.mu.Lock()
	deliver := c.deliver
	matched := false
	for _, f := range c.filters {
		if tether.Matches(f, topic) {
			matched = true
			break
		}
	}
	c.mu.Unlock()

	if matched && deliver != nil {
		deliver(topic, payload)
	}
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes made by
// message handlers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// setupEnv keeps logging quiet and puts the recordings database in a
// temporary directory for the rest of the test.
func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TETHER_DATABASE_PATH", filepath.Join(t.TempDir(), "recordings.db"))
	t.Setenv("TETHER_LOG_LEVEL", "error")
}

// newTestRoot builds the command tree wired to h.
func newTestRoot(t *testing.T, h *hub) (*cobra.Command, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	a := newApp("test", out)
	a.newBroker = h.newClient
	return newRootCmd(a), out
}

// execute runs args against a fresh command tree.
func execute(ctx context.Context, t *testing.T, h *hub, args ...string) (string, error) {
	t.Helper()
	root, out := newTestRoot(t, h)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}
