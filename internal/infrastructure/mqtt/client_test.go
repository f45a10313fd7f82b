package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RandomStudio/tether/internal/infrastructure/config"
)

// These tests run without a broker. Broker-backed tests live in
// integration_test.go behind the "integration" build tag.

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			ClientID: "tether-test",
		},
		QoS:               1,
		KeepAlive:         30,
		ConnectTimeout:    2,
		DisconnectQuiesce: 100,
	}
}

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	opts, err := buildClientOptions(testConfig(), "tcp://localhost:1883", "tether", "sp_ceB0ss!")
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://localhost:1883" {
		t.Errorf("Servers = %v, want [tcp://localhost:1883]", opts.Servers)
	}
	if opts.ClientID != "tether-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "tether-test")
	}
	if opts.Username != "tether" || opts.Password != "sp_ceB0ss!" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
	if opts.KeepAlive != 30 {
		t.Errorf("KeepAlive = %d, want 30", opts.KeepAlive)
	}
	if opts.ConnectTimeout != 2*time.Second {
		t.Errorf("ConnectTimeout = %v, want %v", opts.ConnectTimeout, 2*time.Second)
	}
	if !opts.Order {
		t.Error("Order = false, want true")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured for a plain tcp broker")
	}
}

func TestBuildClientOptions_Defaults(t *testing.T) {
	opts, err := buildClientOptions(config.MQTTConfig{}, "tcp://localhost:1883", "", "")
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}

	if opts.ClientID == "" {
		t.Error("ClientID is empty, want generated UUID")
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty", opts.Username)
	}
	if opts.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", opts.ConnectTimeout, defaultConnectTimeout)
	}
	if opts.KeepAlive != int64(defaultKeepAlive/time.Second) {
		t.Errorf("KeepAlive = %d, want %d", opts.KeepAlive, int64(defaultKeepAlive/time.Second))
	}

	other, _ := buildClientOptions(config.MQTTConfig{}, "tcp://localhost:1883", "", "")
	if other.ClientID == opts.ClientID {
		t.Error("generated client IDs are not unique")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	for _, address := range []string{"ssl://broker:8883", "mqtts://broker:8883", "wss://broker:443/ws"} {
		opts, err := buildClientOptions(testConfig(), address, "", "")
		if err != nil {
			t.Fatalf("buildClientOptions(%q) error = %v", address, err)
		}
		if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
			t.Errorf("buildClientOptions(%q) TLS MinVersion not set", address)
		}
	}
}

func TestBuildClientOptions_InvalidAddress(t *testing.T) {
	for _, address := range []string{"", "localhost:1883", "tcp://"} {
		if _, err := buildClientOptions(testConfig(), address, "", ""); !errors.Is(err, ErrConnectionFailed) {
			t.Errorf("buildClientOptions(%q) error = %v, want ErrConnectionFailed", address, err)
		}
	}
}

func TestConfigureLWT(t *testing.T) {
	opts, _ := buildClientOptions(testConfig(), "tcp://localhost:1883", "", "")
	configureLWT(opts, config.MQTTWillConfig{})
	if opts.WillEnabled {
		t.Error("WillEnabled = true without a will topic")
	}

	configureLWT(opts, config.MQTTWillConfig{Topic: "brain/studio/status", Payload: "offline", QoS: 1, Retained: true})
	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "brain/studio/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if string(opts.WillPayload) != "offline" || opts.WillQos != 1 || !opts.WillRetained {
		t.Errorf("will = %q qos=%d retained=%v", opts.WillPayload, opts.WillQos, opts.WillRetained)
	}
}

// =============================================================================
// Client Tests (disconnected)
// =============================================================================

func TestConnectRefused(t *testing.T) {
	client := New(testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Connect(ctx, "tcp://127.0.0.1:19999", "", "")
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after failed connect")
	}
}

func TestDisconnectNeverConnected(t *testing.T) {
	client := New(testConfig())
	if err := client.Disconnect(time.Millisecond); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := New(testConfig())

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := New(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "a/b/c", qos: 3, wantErr: ErrInvalidQoS},
		{name: "oversized payload", topic: "a/b/c", payload: make([]byte, maxPayloadSize+1), qos: 1, wantErr: ErrPublishFailed},
		{name: "disconnected", topic: "a/b/c", qos: 1, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := New(testConfig())

	if err := client.Subscribe("", 1); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("+/+/x", 3); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("+/+/x", 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
	if err := client.Unsubscribe("+/+/x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
}

// =============================================================================
// Callback Tests
// =============================================================================

func TestHandleMessage(t *testing.T) {
	client := New(testConfig())

	var gotTopic string
	var gotPayload []byte
	client.OnDelivery(func(topic string, payload []byte) {
		gotTopic, gotPayload = topic, payload
	})

	client.handleMessage("dummy/dummy01/testout", []byte("hello"))

	if gotTopic != "dummy/dummy01/testout" || string(gotPayload) != "hello" {
		t.Errorf("delivery = (%q, %q), want (dummy/dummy01/testout, hello)", gotTopic, gotPayload)
	}
}

func TestHandleMessagePanicRecovered(t *testing.T) {
	client := New(testConfig())
	logger := &recordingLogger{}
	client.SetLogger(logger)
	client.OnDelivery(func(string, []byte) { panic("boom") })

	client.handleMessage("a/b/c", nil)

	if !logger.contains("panic recovered") {
		t.Error("panic not logged")
	}
}

func TestHandleMessageWithoutCallback(t *testing.T) {
	client := New(testConfig())
	logger := &recordingLogger{}
	client.SetLogger(logger)

	client.handleMessage("a/b/c", nil)

	if !logger.contains("without delivery callback") {
		t.Error("dropped message not logged")
	}
}

func TestHandleConnectionLost(t *testing.T) {
	client := New(testConfig())
	client.subscriptions["+/+/x"] = 1

	var lost error
	client.OnConnectionLost(func(err error) { lost = err })

	cause := errors.New("EOF")
	client.handleConnectionLost(cause)

	if !errors.Is(lost, cause) {
		t.Errorf("lost callback error = %v, want %v", lost, cause)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after loss, want 0", client.SubscriptionCount())
	}
}
