package tether

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("second Register() expected AlreadyRegistered error")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.recordPublish("a/b", "p", nil)
	m.recordReceived("a/b", "p")
	m.recordDropped("a/b")
	m.recordPanic("a/b", "p")
	m.recordState("a/b", StateChange{To: StateConnected})
}

func TestMetrics_AgentUpdates(t *testing.T) {
	m := NewMetrics()
	broker := newMemBroker()

	agent, client := newTestAgent(t, broker, "dummy", "dummy01", WithMetrics(m))

	if got := testutil.ToFloat64(m.connected.WithLabelValues("dummy/dummy01")); got != 1 {
		t.Errorf("tether_connected = %v, want 1", got)
	}

	out, err := agent.CreateOutput("testout")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := agent.CreateInput("testout", func([]byte, string) {}, WithTopic("dummy/+/testout")); err != nil {
		t.Fatal(err)
	}

	if err := out.Publish([]byte("x")); err != nil {
		t.Fatal(err)
	}
	client.setPublishErr(errors.New("boom"))
	_ = out.Publish([]byte("x"))

	client.SimulateMessage("nobody/listens/here", nil)

	if got := testutil.ToFloat64(m.published.WithLabelValues("dummy/dummy01", "testout")); got != 1 {
		t.Errorf("tether_messages_published_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.publishErrors.WithLabelValues("dummy/dummy01", "testout")); got != 1 {
		t.Errorf("tether_publish_errors_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.received.WithLabelValues("dummy/dummy01", "testout")); got != 1 {
		t.Errorf("tether_messages_received_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.dropped.WithLabelValues("dummy/dummy01")); got != 1 {
		t.Errorf("tether_messages_dropped_total = %v, want 1", got)
	}

	client.SimulateLoss(errors.New("EOF"))

	if got := testutil.ToFloat64(m.connectionLoss.WithLabelValues("dummy/dummy01")); got != 1 {
		t.Errorf("tether_connection_lost_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connected.WithLabelValues("dummy/dummy01")); got != 0 {
		t.Errorf("tether_connected = %v, want 0", got)
	}
}
