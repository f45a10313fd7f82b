// Package tether lets a process exchange messages over an MQTT broker as a
// Tether agent.
//
// An agent is identified by a type ("role") and an ID. Every message lives
// on a three-part topic:
//
//	<agentType>/<agentID>/<plugName>
//
// An OutputPlug publishes on its agent's own topic. An InputPlug subscribes
// with "+/+/<plugName>", so it hears every agent publishing on a plug of
// that name. Payloads are opaque bytes; the codec package in this module
// provides the MessagePack encoding used by other Tether tools.
//
// # Usage
//
//	agent, err := tether.NewAgent("brain", "studio", tether.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := agent.Connect(ctx, "tcp", "localhost", 1883); err != nil {
//	    return err
//	}
//	defer agent.Disconnect()
//
//	colours, _ := agent.CreateOutput("colours")
//	_ = colours.Publish(payload)
//
//	_, _ = agent.CreateInput("presence", func(payload []byte, topic string) {
//	    // topic is e.g. "sensor/left/presence"
//	})
//
// # Connection lifecycle
//
// Connect moves the agent from Disconnected (or Failed) to Connected.
// A transport-reported loss moves it back to Disconnected; the agent never
// reconnects on its own. Attach a Supervisor for bounded, exponential
// reconnection.
//
// # Dispatch
//
// All deliveries pass through one dispatcher. Every input whose filter
// matches the topic is invoked, in registration order, on the broker
// client's delivery goroutine. Handler panics are recovered and reported to
// the error sink.
package tether
