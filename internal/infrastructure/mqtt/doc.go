// Package mqtt is the default broker client for Tether agents, built on
// paho.mqtt.golang.
//
// This package manages:
//   - Connecting to a broker over tcp, ssl/mqtts, ws or wss
//   - Publishing with QoS and retain flags
//   - Subscribing with wildcard filters, routed to one delivery callback
//   - Reporting unexpected connection loss
//   - Optional Last Will and Testament
//
// Auto-reconnect is off: a Tether agent surfaces the loss and leaves
// recovery to a supervisor.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.OnDelivery(func(topic string, payload []byte) {
//	    log.Printf("%s: %d bytes", topic, len(payload))
//	})
//	if err := client.Connect(ctx, "tcp://localhost:1883", "tether", "sp_ceB0ss!"); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	_ = client.Subscribe("+/+/colours", 1)
//	_ = client.Publish("brain/studio/colours", payload, 1, false)
//
// # Security Considerations
//
//   - Use mqtts or wss for brokers reachable beyond the local network
//   - The default credentials are shared; override them in deployment
package mqtt
