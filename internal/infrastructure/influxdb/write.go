package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	TopicMeasurement = "tether_topics"
	AgentMeasurement = "tether_agents"
)

// TopicSample is one observation of traffic on a single topic.
type TopicSample struct {
	Topic    string
	Role     string
	ID       string
	Plug     string
	Messages uint64  // total seen since monitoring started
	Bytes    uint64  // total payload bytes
	Rate     float64 // messages per second over the last window
	At       time.Time
}

// WriteTopicSample writes s to the tether_topics measurement. Tags carry the
// three topic parts so dashboards can group by role, id or plug. Role, ID
// and Plug are omitted for topics outside the agent convention.
func (c *Client) WriteTopicSample(s TopicSample) {
	c.writePoint(topicPoint(s))
}

func topicPoint(s TopicSample) *write.Point {
	tags := map[string]string{"topic": s.Topic}
	if s.Role != "" {
		tags["role"] = s.Role
	}
	if s.ID != "" {
		tags["id"] = s.ID
	}
	if s.Plug != "" {
		tags["plug"] = s.Plug
	}

	at := s.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		TopicMeasurement,
		tags,
		map[string]interface{}{
			"messages": s.Messages,
			"bytes":    s.Bytes,
			"rate":     s.Rate,
		},
		at,
	)
}

// WriteAgentCounts records how many distinct roles, ids and plugs have been
// seen on the broker.
func (c *Client) WriteAgentCounts(roles, ids, plugs int, at time.Time) {
	c.writePoint(write.NewPoint(
		AgentMeasurement,
		nil,
		map[string]interface{}{
			"roles": roles,
			"ids":   ids,
			"plugs": plugs,
		},
		at,
	))
}
