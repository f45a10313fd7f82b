package recording

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type published struct {
	topic   string
	payload []byte
	qos     byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) PublishRaw(topic string, payload []byte, qos byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic: topic, payload: append([]byte(nil), payload...), qos: qos})
	return nil
}

func (f *fakePublisher) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.topic
	}
	return out
}

// recordSleeps replaces the player's sleep with one that logs requested waits.
func recordSleeps(p *Player) *[]time.Duration {
	var waits []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return &waits
}

var testRows = []Row{
	{Topic: "brain/studio/colours", Message: Payload{1}, DeltaTime: 0},
	{Topic: "lights/hall/state", Message: Payload{2}, DeltaTime: 100},
	{Topic: "brain/studio/mood", Message: Payload{3}, DeltaTime: 200},
}

func TestNewPlayer_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts PlayOptions
		want error
	}{
		{"defaults", PlayOptions{}, nil},
		{"negative speed", PlayOptions{Speed: -1}, ErrInvalidSpeed},
		{"negative loops", PlayOptions{Loops: -1}, ErrInvalidLoops},
		{"negative loops infinite", PlayOptions{Loops: -1, Infinite: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlayer(&fakePublisher{}, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewPlayer() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPlayer_PlaysInOrderWithTiming(t *testing.T) {
	pub := &fakePublisher{}
	p, err := NewPlayer(pub, PlayOptions{Speed: 2, QoS: 1})
	if err != nil {
		t.Fatalf("NewPlayer() error = %v", err)
	}
	waits := recordSleeps(p)

	stats, err := p.Play(context.Background(), testRows)
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if stats.Published != 3 || stats.Loops != 1 {
		t.Errorf("stats = %+v, want 3 published in 1 loop", stats)
	}

	want := []time.Duration{0, 50 * time.Millisecond, 100 * time.Millisecond}
	if len(*waits) != len(want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
	for i := range want {
		if (*waits)[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, (*waits)[i], want[i])
		}
	}
	if pub.msgs[0].qos != 1 {
		t.Errorf("qos = %d, want 1", pub.msgs[0].qos)
	}
}

func TestPlayer_Filters(t *testing.T) {
	pub := &fakePublisher{}
	p, _ := NewPlayer(pub, PlayOptions{Filters: ParseFilters("studio, ,nothing")})
	recordSleeps(p)

	stats, err := p.Play(context.Background(), testRows)
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	got := pub.topics()
	if len(got) != 2 || got[0] != "brain/studio/colours" || got[1] != "brain/studio/mood" {
		t.Errorf("published %v", got)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
}

func TestPlayer_OverrideTopic(t *testing.T) {
	pub := &fakePublisher{}
	p, _ := NewPlayer(pub, PlayOptions{OverrideTopic: "replay/one/out"})
	recordSleeps(p)

	if _, err := p.Play(context.Background(), testRows); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	for _, topic := range pub.topics() {
		if topic != "replay/one/out" {
			t.Errorf("published on %q, want replay/one/out", topic)
		}
	}
}

func TestPlayer_Loops(t *testing.T) {
	pub := &fakePublisher{}
	p, _ := NewPlayer(pub, PlayOptions{Loops: 3})
	recordSleeps(p)

	stats, err := p.Play(context.Background(), testRows)
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if stats.Loops != 3 || stats.Published != 9 {
		t.Errorf("stats = %+v, want 3 loops and 9 published", stats)
	}
}

func TestPlayer_InfiniteStopsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	p, _ := NewPlayer(pub, PlayOptions{Infinite: true})

	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(ctx context.Context, _ time.Duration) error {
		if len(pub.topics()) >= 7 {
			cancel()
		}
		return ctx.Err()
	}

	stats, err := p.Play(ctx, testRows)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Play() error = %v, want context.Canceled", err)
	}
	if stats.Loops < 3 {
		t.Errorf("Loops = %d, want at least 3", stats.Loops)
	}
}

func TestPlayer_PublishError(t *testing.T) {
	boom := errors.New("not connected")
	p, _ := NewPlayer(&fakePublisher{err: boom}, PlayOptions{})
	recordSleeps(p)

	stats, err := p.Play(context.Background(), testRows)
	if !errors.Is(err, boom) {
		t.Errorf("Play() error = %v, want %v", err, boom)
	}
	if stats.Published != 0 {
		t.Errorf("Published = %d, want 0", stats.Published)
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() error = %v, want context.Canceled", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() error = %v", err)
	}
}
