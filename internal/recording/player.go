package recording

import (
	"context"
	"strings"
	"time"

	"github.com/RandomStudio/tether"
)

// Publisher is the part of *tether.Agent the player needs.
type Publisher interface {
	PublishRaw(topic string, payload []byte, qos byte, retained bool) error
}

// PlayOptions controls playback.
type PlayOptions struct {
	// Filters keeps only rows whose topic contains at least one of these
	// substrings. Empty keeps every row.
	Filters []string

	// OverrideTopic, when set, replaces the topic of every row.
	OverrideTopic string

	// Speed scales timing: 2 plays twice as fast. Zero means 1.
	Speed float64

	// Loops is how many times to play the rows. Zero means 1. Ignored when
	// Infinite is set.
	Loops    int
	Infinite bool

	QoS byte
}

// PlayStats summarises a playback.
type PlayStats struct {
	Loops     int
	Published int
	Skipped   int
}

// Player publishes recorded rows with their original timing.
type Player struct {
	pub    Publisher
	opts   PlayOptions
	logger tether.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPlayer validates opts and returns a player publishing through pub.
func NewPlayer(pub Publisher, opts PlayOptions) (*Player, error) {
	if opts.Speed == 0 {
		opts.Speed = 1
	}
	if opts.Speed < 0 {
		return nil, ErrInvalidSpeed
	}
	if opts.Loops == 0 {
		opts.Loops = 1
	}
	if opts.Loops < 0 && !opts.Infinite {
		return nil, ErrInvalidLoops
	}
	return &Player{pub: pub, opts: opts, logger: discard{}, sleep: sleepContext}, nil
}

// SetLogger sets the progress logger.
func (p *Player) SetLogger(logger tether.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Play publishes rows, looping as configured. It stops early with ctx.Err()
// when ctx is cancelled, or with the first publish error.
func (p *Player) Play(ctx context.Context, rows []Row) (PlayStats, error) {
	var stats PlayStats

	if p.opts.OverrideTopic != "" {
		p.logger.Warn("override topic set, recorded topics will be replaced", "topic", p.opts.OverrideTopic)
	}

	for p.opts.Infinite || stats.Loops < p.opts.Loops {
		stats.Loops++
		if p.opts.Infinite {
			p.logger.Info("starting loop", "loop", stats.Loops)
		} else {
			p.logger.Info("starting loop", "loop", stats.Loops, "of", p.opts.Loops)
		}

		if err := p.playOnce(ctx, rows, &stats); err != nil {
			return stats, err
		}
		// Guard against spinning on an empty or fully filtered recording.
		if p.opts.Infinite && stats.Published == 0 {
			if err := p.sleep(ctx, time.Second); err != nil {
				return stats, err
			}
		}
	}

	p.logger.Info("playback finished", "loops", stats.Loops, "published", stats.Published, "skipped", stats.Skipped)
	return stats, nil
}

func (p *Player) playOnce(ctx context.Context, rows []Row, stats *PlayStats) error {
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.keep(row.Topic) {
			stats.Skipped++
			continue
		}

		wait := time.Duration(float64(row.DeltaTime) / p.opts.Speed * float64(time.Millisecond))
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}

		topic := row.Topic
		if p.opts.OverrideTopic != "" {
			topic = p.opts.OverrideTopic
		}
		if err := p.pub.PublishRaw(topic, row.Message, p.opts.QoS, false); err != nil {
			return err
		}
		stats.Published++
		p.logger.Debug("published recorded row", "topic", topic, "bytes", len(row.Message))
	}
	return nil
}

func (p *Player) keep(topic string) bool {
	if len(p.opts.Filters) == 0 {
		return true
	}
	for _, f := range p.opts.Filters {
		if strings.Contains(topic, f) {
			return true
		}
	}
	return false
}

// ParseFilters splits a comma-separated filter list, dropping empty entries.
func ParseFilters(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
