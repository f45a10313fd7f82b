package insights

import (
	"context"
	"time"

	"github.com/RandomStudio/tether/internal/infrastructure/influxdb"
)

// SampleWriter receives exported samples. *influxdb.Client implements it.
type SampleWriter interface {
	WriteTopicSample(s influxdb.TopicSample)
	WriteAgentCounts(roles, ids, plugs int, at time.Time)
}

// Exporter periodically writes per-topic counters and rates.
type Exporter struct {
	in  *Insights
	w   SampleWriter
	now func() time.Time

	last   map[string]uint64
	lastAt time.Time
}

// NewExporter creates an exporter for in writing to w.
func NewExporter(in *Insights, w SampleWriter) *Exporter {
	return &Exporter{in: in, w: w, now: in.now, last: make(map[string]uint64)}
}

// Export writes one sample per known topic plus the agent counts and returns
// the number of topic samples written. Rates cover the time since the
// previous Export; the first Export reports a rate of zero.
func (e *Exporter) Export() int {
	now := e.now()
	stats := e.in.TopicStats()

	var elapsed float64
	if !e.lastAt.IsZero() {
		elapsed = now.Sub(e.lastAt).Seconds()
	}

	for _, st := range stats {
		var rate float64
		if elapsed > 0 {
			rate = float64(st.Messages-e.last[st.Topic]) / elapsed
		}
		e.last[st.Topic] = st.Messages

		sample := influxdb.TopicSample{
			Topic:    st.Topic,
			Messages: st.Messages,
			Bytes:    st.Bytes,
			Rate:     rate,
			At:       now,
		}
		if st.Role != Unknown {
			sample.Role, sample.ID, sample.Plug = st.Role, st.ID, st.Plug
		}
		e.w.WriteTopicSample(sample)
	}

	e.w.WriteAgentCounts(len(e.in.Roles()), len(e.in.IDs()), len(e.in.Plugs()), now)
	e.lastAt = now
	return len(stats)
}

// Run calls Export every interval until ctx is done, then once more.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Export()
			return
		case <-ticker.C:
			e.Export()
		}
	}
}
