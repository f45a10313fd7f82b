package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RandomStudio/tether"
)

// DefaultFilter records everything on the broker.
const DefaultFilter = "#"

// recordPlugName names the input plug the recorder subscribes with.
const recordPlugName = "record"

// Options controls a recording session.
type Options struct {
	// Filter is the subscription filter. Empty means DefaultFilter.
	Filter string

	// StartDelay discards messages for this long after Run begins.
	StartDelay time.Duration

	// MaxDuration stops the recording this long after the start delay has
	// elapsed. Zero records until the context is cancelled.
	MaxDuration time.Duration

	// NonZeroStart gives the first row the time since recording began
	// instead of zero.
	NonZeroStart bool
}

// Subscriber is the part of *tether.Agent the recorder needs.
type Subscriber interface {
	CreateInput(name string, handler tether.MessageHandler, opts ...tether.PlugOption) (*tether.InputPlug, error)
}

// Recorder turns incoming messages into rows and writes them to every sink.
type Recorder struct {
	opts   Options
	sinks  []Sink
	logger tether.Logger
	now    func() time.Time

	mu      sync.Mutex
	armedAt time.Time
	prev    time.Time
	count   int
	sinkErr error
	stopped bool
}

// NewRecorder creates a recorder writing to sinks.
func NewRecorder(opts Options, sinks ...Sink) *Recorder {
	if opts.Filter == "" {
		opts.Filter = DefaultFilter
	}
	return &Recorder{
		opts:  opts,
		sinks: sinks,
		now:   time.Now,
	}
}

// SetLogger sets the logger used for progress and sink errors.
func (r *Recorder) SetLogger(logger tether.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Count returns the number of rows at least one sink accepted.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Run subscribes through sub and records until ctx is done or MaxDuration
// elapses, then closes the sinks. Cancellation is a normal stop and is not
// returned as an error; the first sink failure is.
func (r *Recorder) Run(ctx context.Context, sub Subscriber) error {
	r.arm()

	if _, err := sub.CreateInput(recordPlugName, r.Handle, tether.WithTopic(r.opts.Filter)); err != nil {
		return errors.Join(fmt.Errorf("subscribing to %q: %w", r.opts.Filter, err), r.stop())
	}
	r.log().Info("recording started", "filter", r.opts.Filter, "start_delay", r.opts.StartDelay, "max_duration", r.opts.MaxDuration)

	var timeout <-chan time.Time
	if r.opts.MaxDuration > 0 {
		timer := time.NewTimer(r.opts.StartDelay + r.opts.MaxDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
	case <-timeout:
		r.log().Info("recording reached max duration", "max_duration", r.opts.MaxDuration)
	}

	r.mu.Lock()
	count, sinkErr := r.count, r.sinkErr
	r.mu.Unlock()

	r.log().Info("recording finished", "rows", count)
	return errors.Join(sinkErr, r.stop())
}

// stop makes Handle ignore further deliveries and closes the sinks. The
// input plug stays subscribed until the agent disconnects.
func (r *Recorder) stop() error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	return r.closeSinks()
}

// arm marks the start of the recording window.
func (r *Recorder) arm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armedAt = r.now().Add(r.opts.StartDelay)
	r.prev = time.Time{}
}

// Handle records one message. It is the recorder's tether.MessageHandler.
func (r *Recorder) Handle(payload []byte, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	now := r.now()
	if r.armedAt.IsZero() {
		r.armedAt = now
	}
	if now.Before(r.armedAt) {
		return
	}

	var delta time.Duration
	switch {
	case !r.prev.IsZero():
		delta = now.Sub(r.prev)
	case r.opts.NonZeroStart:
		delta = now.Sub(r.armedAt)
	}
	r.prev = now

	row := Row{
		Topic:     topic,
		Message:   append(Payload(nil), payload...),
		DeltaTime: uint64(delta.Milliseconds()), // #nosec G115 -- never negative
	}

	written := len(r.sinks) == 0
	for _, s := range r.sinks {
		if err := s.WriteRow(row); err != nil {
			if r.sinkErr == nil {
				r.sinkErr = err
			}
			r.logLocked().Error("writing recorded row", "topic", topic, "error", err)
			continue
		}
		written = true
	}
	if written {
		r.count++
	}
}

func (r *Recorder) closeSinks() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Recorder) log() tether.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logLocked()
}

func (r *Recorder) logLocked() tether.Logger {
	if r.logger == nil {
		return discard{}
	}
	return r.logger
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}
