//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RandomStudio/tether/internal/infrastructure/config"
)

// Integration tests against a running MQTT broker at 127.0.0.1:1883 that
// accepts the default Tether credentials (or anonymous clients).
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

const integrationBroker = "tcp://127.0.0.1:1883"

func connectIntegration(t *testing.T, clientID string) *Client {
	t.Helper()

	cfg := testConfig()
	cfg.Broker.ClientID = clientID

	client := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx, integrationBroker, config.DefaultUsername, config.DefaultPassword); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connectIntegration(t, "tether-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connectIntegration(t, "tether-int-sub-track")

	filters := []string{"+/+/int-one", "+/+/int-two", "tether-int/#"}
	for _, f := range filters {
		if err := client.Subscribe(f, 1); err != nil {
			t.Fatalf("Subscribe(%q) error = %v", f, err)
		}
	}

	if got := client.SubscriptionCount(); got != len(filters) {
		t.Errorf("SubscriptionCount() = %d, want %d", got, len(filters))
	}

	if err := client.Unsubscribe(filters[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(filters[0]) {
		t.Errorf("HasSubscription(%q) = true after Unsubscribe", filters[0])
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	receiver := connectIntegration(t, "tether-int-rx")
	sender := connectIntegration(t, "tether-int-tx")

	var (
		mu       sync.Mutex
		received []string
	)
	done := make(chan struct{}, 1)
	receiver.OnDelivery(func(topic string, payload []byte) {
		mu.Lock()
		received = append(received, topic+"="+string(payload))
		mu.Unlock()
		done <- struct{}{}
	})

	if err := receiver.Subscribe("+/+/int-roundtrip", 1); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := sender.Publish("dummy/dummy01/int-roundtrip", []byte("hello"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "dummy/dummy01/int-roundtrip=hello" {
		t.Errorf("received = %v", received)
	}
}

func TestIntegration_DisconnectNotReportedAsLoss(t *testing.T) {
	client := connectIntegration(t, "tether-int-disconnect")

	lost := make(chan error, 1)
	client.OnConnectionLost(func(err error) { lost <- err })

	if err := client.Disconnect(100 * time.Millisecond); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	select {
	case err := <-lost:
		t.Errorf("OnConnectionLost called for Disconnect: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}
