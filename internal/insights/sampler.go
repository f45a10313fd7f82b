package insights

import (
	"sync"
	"time"
)

// samplerWindow is how many samples the sampler keeps.
const samplerWindow = 64

// Sampler records a running total at a fixed interval so recent throughput
// can be plotted as per-interval deltas.
type Sampler struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	samples  []uint64
}

// NewSampler creates a sampler that accepts at most one sample per interval.
func NewSampler(interval time.Duration, now time.Time) *Sampler {
	return &Sampler{interval: interval, last: now}
}

// Add stores total if more than one interval has passed since the last
// stored sample, and reports whether it did.
func (s *Sampler) Add(total uint64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.last) <= s.interval {
		return false
	}
	s.last = now
	if len(s.samples) == samplerWindow {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:samplerWindow-1]
	}
	s.samples = append(s.samples, total)
	return true
}

// Samples returns the stored totals, oldest first.
func (s *Sampler) Samples() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.samples...)
}

// Deltas returns the increase between consecutive samples. The first entry
// is the oldest sample itself.
func (s *Sampler) Deltas() []uint64 {
	samples := s.Samples()
	out := make([]uint64, len(samples))
	var prev uint64
	for i, v := range samples {
		out[i] = v - prev
		prev = v
	}
	return out
}
