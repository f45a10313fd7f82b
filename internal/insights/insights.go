// Package insights watches broker traffic and summarises which Tether
// agents are active: their roles, IDs and plugs, message counts and rates.
// It backs the `tether topics` command.
package insights

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RandomStudio/tether"
	"github.com/RandomStudio/tether/internal/codec"
)

const (
	// LogLength is how many recent messages the log keeps.
	LogLength = 256

	// Unknown stands in for a topic part that could not be parsed.
	Unknown = "unknown"

	// DefaultSampleInterval is the sampler interval used by New.
	DefaultSampleInterval = time.Second
)

// Entry is one message in the recent-message log, rendered for display.
type Entry struct {
	Topic   string
	Payload string
	At      time.Time
}

// AgentTree groups the IDs and plugs seen for one role.
type AgentTree struct {
	Role  string
	IDs   []string
	Plugs []string
}

// String renders the tree as an indented list.
func (t AgentTree) String() string {
	var b strings.Builder
	b.WriteString(t.Role + "\n")
	for _, id := range t.IDs {
		b.WriteString("  - " + id + "\n")
	}
	for _, p := range t.Plugs {
		b.WriteString("      > " + p + "\n")
	}
	return b.String()
}

// TopicStat is the traffic seen on a single topic.
type TopicStat struct {
	Topic    string
	Role     string
	ID       string
	Plug     string
	Messages uint64
	Bytes    uint64
}

// Insights accumulates traffic statistics. It is safe for concurrent use.
type Insights struct {
	mu  sync.RWMutex
	now func() time.Time

	topics []string
	roles  []string
	ids    []string
	plugs  []string
	trees  []AgentTree
	stats  map[string]*TopicStat

	count    uint64
	logStart time.Time
	log      []Entry
	logHead  int

	sampler *Sampler
}

// New creates an empty Insights with a sampler at the given interval
// (DefaultSampleInterval if zero).
func New(sampleInterval time.Duration) *Insights {
	return newInsights(sampleInterval, time.Now)
}

func newInsights(sampleInterval time.Duration, now func() time.Time) *Insights {
	if sampleInterval <= 0 {
		sampleInterval = DefaultSampleInterval
	}
	return &Insights{
		now:     now,
		stats:   make(map[string]*TopicStat),
		log:     make([]Entry, 0, LogLength),
		sampler: NewSampler(sampleInterval, now()),
	}
}

// Handle is a tether.MessageHandler feeding Update.
func (in *Insights) Handle(payload []byte, topic string) {
	in.Update(topic, payload)
}

// Update accounts for one message and reports whether a previously unseen
// topic, role, ID or plug appeared.
func (in *Insights) Update(topic string, payload []byte) bool {
	now := in.now()
	rendered, _ := codec.Render(payload)

	role, id, plug := Unknown, Unknown, Unknown
	if parts, err := tether.ParseTopic(topic); err == nil {
		role, id, plug = parts.Type, parts.ID, parts.Plug
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	in.count++
	if in.logStart.IsZero() {
		in.logStart = now
	}
	in.appendLog(Entry{Topic: topic, Payload: rendered, At: now})

	st := in.stats[topic]
	if st == nil {
		st = &TopicStat{Topic: topic, Role: role, ID: id, Plug: plug}
		in.stats[topic] = st
	}
	st.Messages++
	st.Bytes += uint64(len(payload))

	changed := false
	changed = addUnique(&in.topics, topic) || changed
	changed = addUnique(&in.roles, role) || changed
	changed = addUnique(&in.ids, id) || changed
	changed = addUnique(&in.plugs, plug) || changed

	if changed {
		in.rebuildTrees()
	}
	return changed
}

func (in *Insights) appendLog(e Entry) {
	if len(in.log) < LogLength {
		in.log = append(in.log, e)
		return
	}
	in.log[in.logHead] = e
	in.logHead = (in.logHead + 1) % LogLength
}

// rebuildTrees groups known topics by role. Caller holds in.mu.
func (in *Insights) rebuildTrees() {
	trees := make([]AgentTree, 0, len(in.roles))
	for _, role := range in.roles {
		tree := AgentTree{Role: role}
		for _, topic := range in.topics {
			st := in.stats[topic]
			if st.Role != role {
				continue
			}
			addUnique(&tree.IDs, st.ID)
			addUnique(&tree.Plugs, st.Plug)
		}
		trees = append(trees, tree)
	}
	in.trees = trees
}

// Sample offers the current message count to the sampler.
func (in *Insights) Sample() bool {
	return in.sampler.Add(in.MessageCount(), in.now())
}

// Sampler returns the message-count sampler.
func (in *Insights) Sampler() *Sampler { return in.sampler }

// MessageCount returns how many messages have been seen.
func (in *Insights) MessageCount() uint64 {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.count
}

// Rate returns messages per second since the first message. ok is false
// before any message has arrived.
func (in *Insights) Rate() (rate float64, ok bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if in.logStart.IsZero() {
		return 0, false
	}
	elapsed := in.now().Sub(in.logStart).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	return float64(in.count) / elapsed, true
}

// Topics returns unique topics in order of first appearance.
func (in *Insights) Topics() []string { return in.snapshot(in.topics) }

// Roles returns unique agent roles in order of first appearance.
func (in *Insights) Roles() []string { return in.snapshot(in.roles) }

// IDs returns unique agent IDs in order of first appearance.
func (in *Insights) IDs() []string { return in.snapshot(in.ids) }

// Plugs returns unique plug names in order of first appearance.
func (in *Insights) Plugs() []string { return in.snapshot(in.plugs) }

func (in *Insights) snapshot(list []string) []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]string(nil), list...)
}

// Trees returns one AgentTree per role.
func (in *Insights) Trees() []AgentTree {
	in.mu.RLock()
	defer in.mu.RUnlock()

	out := make([]AgentTree, len(in.trees))
	for i, t := range in.trees {
		out[i] = AgentTree{
			Role:  t.Role,
			IDs:   append([]string(nil), t.IDs...),
			Plugs: append([]string(nil), t.Plugs...),
		}
	}
	return out
}

// TopicStats returns per-topic counters in order of first appearance.
func (in *Insights) TopicStats() []TopicStat {
	in.mu.RLock()
	defer in.mu.RUnlock()

	out := make([]TopicStat, 0, len(in.topics))
	for _, topic := range in.topics {
		out = append(out, *in.stats[topic])
	}
	return out
}

// Log returns the recent-message log, oldest first.
func (in *Insights) Log() []Entry {
	in.mu.RLock()
	defer in.mu.RUnlock()

	out := make([]Entry, 0, len(in.log))
	out = append(out, in.log[in.logHead:]...)
	out = append(out, in.log[:in.logHead]...)
	return out
}

// String renders the summary printed by `tether topics`.
func (in *Insights) String() string {
	topics, roles, ids, plugs := in.Topics(), in.Roles(), in.IDs(), in.Plugs()

	var b strings.Builder
	fmt.Fprintf(&b, "x%d Topics: %v\n\n", len(topics), topics)
	fmt.Fprintf(&b, "x%d Roles: %v\n", len(roles), roles)
	fmt.Fprintf(&b, "x%d IDs: %v\n", len(ids), ids)
	fmt.Fprintf(&b, "x%d Plugs: %v\n", len(plugs), plugs)
	for _, t := range in.Trees() {
		b.WriteString("\n" + t.String())
	}
	return b.String()
}

func addUnique(list *[]string, item string) bool {
	for _, s := range *list {
		if s == item {
			return false
		}
	}
	*list = append(*list, item)
	return true
}
