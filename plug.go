package tether

import (
	"fmt"
	"sync"
)

// Direction says whether a plug publishes or receives.
type Direction int

const (
	// DirectionOutput plugs publish on a concrete topic.
	DirectionOutput Direction = iota
	// DirectionInput plugs subscribe with a filter.
	DirectionInput
)

// String returns "out" or "in".
func (d Direction) String() string {
	if d == DirectionInput {
		return "in"
	}
	return "out"
}

// PlugDefinition is the immutable description of a plug.
type PlugDefinition struct {
	Name      string
	Topic     string
	Direction Direction
	QoS       byte
	Retain    bool
}

// MessageHandler receives the payload and the concrete topic it arrived on.
type MessageHandler func(payload []byte, topic string)

// Plug is the capability shared by OutputPlug and InputPlug.
type Plug interface {
	Name() string
	Topic() string
	Definition() PlugDefinition
}

var (
	_ Plug = (*OutputPlug)(nil)
	_ Plug = (*InputPlug)(nil)
)

// OutputPlug publishes on "agentType/agentID/name" unless overridden.
type OutputPlug struct {
	def     PlugDefinition
	agent   *Agent
	session uint64
}

// Name returns the plug name.
func (p *OutputPlug) Name() string { return p.def.Name }

// Topic returns the concrete topic messages are published on.
func (p *OutputPlug) Topic() string { return p.def.Topic }

// Definition returns a copy of the plug's definition.
func (p *OutputPlug) Definition() PlugDefinition { return p.def }

// Publish sends payload with the plug's QoS and retain flag. The payload is
// opaque and may be empty.
func (p *OutputPlug) Publish(payload []byte) error {
	return p.PublishQoS(payload, p.def.QoS)
}

// PublishQoS sends payload with an explicit QoS for this call only.
func (p *OutputPlug) PublishQoS(payload []byte, qos byte) error {
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	err := p.agent.publishFrom(p, payload, qos)
	p.agent.opts.metrics.recordPublish(p.agent.label, p.def.Name, err)
	return err
}

// InputPlug receives deliveries matching its filter, "+/+/name" unless
// overridden. Instances are created by Agent.CreateInput only.
type InputPlug struct {
	def PlugDefinition

	mu      sync.RWMutex
	handler MessageHandler
}

// Name returns the plug name.
func (p *InputPlug) Name() string { return p.def.Name }

// Topic returns the subscription filter.
func (p *InputPlug) Topic() string { return p.def.Topic }

// Definition returns a copy of the plug's definition.
func (p *InputPlug) Definition() PlugDefinition { return p.def }

// Matches reports whether topic is covered by the plug's filter.
func (p *InputPlug) Matches(topic string) bool {
	return Matches(p.def.Topic, topic)
}

// SetHandler replaces the handler for subsequent deliveries. A nil handler
// drops deliveries for this plug.
func (p *InputPlug) SetHandler(h MessageHandler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *InputPlug) currentHandler() MessageHandler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handler
}

// buildDefinition derives a plug's definition from its name, the owning
// agent's identity and the caller's options.
func buildDefinition(id Identity, name string, dir Direction, opts []PlugOption) (PlugDefinition, error) {
	if err := ValidateName(name); err != nil {
		return PlugDefinition{}, fmt.Errorf("plug name: %w", err)
	}

	o := plugOptions{qos: defaultQoS}
	for _, opt := range opts {
		opt(&o)
	}
	if o.qos > maxQoS {
		return PlugDefinition{}, ErrInvalidQoS
	}

	def := PlugDefinition{
		Name:      name,
		Direction: dir,
		QoS:       o.qos,
	}

	switch dir {
	case DirectionOutput:
		def.Retain = o.retain
		def.Topic = OutputTopic(id.Type, id.ID, name)
		if o.role != "" || o.id != "" {
			role, agentID := id.Type, id.ID
			if o.role != "" {
				role = o.role
			}
			if o.id != "" {
				agentID = o.id
			}
			if err := ValidateName(role); err != nil {
				return PlugDefinition{}, fmt.Errorf("role override: %w", err)
			}
			if err := ValidateName(agentID); err != nil {
				return PlugDefinition{}, fmt.Errorf("id override: %w", err)
			}
			def.Topic = OutputTopic(role, agentID, name)
		}
		if o.topic != "" {
			if err := ValidateConcreteTopic(o.topic); err != nil {
				return PlugDefinition{}, err
			}
			def.Topic = o.topic
		}
	case DirectionInput:
		def.Topic = InputFilter(name)
		if o.role != "" || o.id != "" {
			role, agentID := singleLevelMatch, singleLevelMatch
			if o.role != "" {
				role = o.role
			}
			if o.id != "" {
				agentID = o.id
			}
			for _, seg := range []string{role, agentID} {
				if seg == singleLevelMatch {
					continue
				}
				if err := ValidateName(seg); err != nil {
					return PlugDefinition{}, fmt.Errorf("filter override: %w", err)
				}
			}
			def.Topic = role + topicSeparator + agentID + topicSeparator + name
		}
		if o.topic != "" {
			def.Topic = o.topic
		}
		if err := ValidateFilter(def.Topic); err != nil {
			return PlugDefinition{}, err
		}
	}

	return def, nil
}
