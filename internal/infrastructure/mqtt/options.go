package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/RandomStudio/tether/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout applies when the config leaves it unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 * time.Millisecond

	// defaultKeepAlive applies when the config leaves it unset.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// secureSchemes are the broker URL schemes that need a TLS config.
var secureSchemes = map[string]bool{
	"ssl":   true,
	"tls":   true,
	"mqtts": true,
	"wss":   true,
}

// buildClientOptions creates paho options for one connection attempt.
//
// This configures:
//   - Broker URL, validated here so a typo fails before dialling
//   - Client ID (random UUID when unset)
//   - Credentials (if provided)
//   - Clean session, no auto-reconnect
//   - Keepalive and connect timeout
//   - TLS for secure schemes
func buildClientOptions(cfg config.MQTTConfig, address, username, password string) (*pahomqtt.ClientOptions, error) {
	u, err := url.Parse(address)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid broker address %q", ErrConnectionFailed, address)
	}
	scheme := strings.ToLower(u.Scheme)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(address)

	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	opts.SetClientID(clientID)

	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// Reconnection is a policy decision made above the client.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	connectTimeout := cfg.GetConnectTimeout()
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.GetKeepAlive()
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	// Deliver messages one at a time, in order.
	opts.SetOrderMatters(true)

	if secureSchemes[scheme] {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts, nil
}

// configureLWT registers a Last Will and Testament when one is configured.
// The broker publishes it if the client disappears without disconnecting.
func configureLWT(opts *pahomqtt.ClientOptions, will config.MQTTWillConfig) {
	if will.Topic == "" {
		return
	}
	qos := byte(will.QoS)
	if will.QoS < 0 || will.QoS > maxQoS {
		qos = 1
	}
	opts.SetWill(will.Topic, will.Payload, qos, will.Retained)
}
