package tether

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// SupervisorStatus represents what a Supervisor is currently doing.
type SupervisorStatus string

const (
	SupervisorIdle         SupervisorStatus = "idle"
	SupervisorWatching     SupervisorStatus = "watching"
	SupervisorReconnecting SupervisorStatus = "reconnecting"
	SupervisorGaveUp       SupervisorStatus = "gave_up"
	SupervisorStopped      SupervisorStatus = "stopped"
)

// SupervisorConfig controls reconnection after a transport-reported loss.
type SupervisorConfig struct {
	// InitialDelay is the wait before the second attempt. The first attempt
	// is immediate.
	InitialDelay time.Duration

	// MaxDelay caps the exponential growth of the wait between attempts.
	MaxDelay time.Duration

	// MaxAttempts bounds attempts per loss. Must be at least 1.
	MaxAttempts int

	// OnRestart is called before each reconnect attempt (1-based).
	OnRestart func(attempt int)

	// OnRecovered is called after a successful reconnect.
	OnRecovered func(attempts int)

	// OnGiveUp is called when every attempt for a loss has failed.
	OnGiveUp func(err error)
}

// DefaultSupervisorConfig returns a SupervisorConfig with sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		MaxAttempts:  10,
	}
}

// reconnector is the part of *Agent the supervisor drives.
type reconnector interface {
	Reconnect(ctx context.Context) error
	OnStateChange(fn func(StateChange))
}

// Supervisor reconnects an Agent after the transport drops the connection.
// The Agent itself never reconnects; a caller's Disconnect is never undone.
type Supervisor struct {
	agent  reconnector
	config SupervisorConfig
	logger Logger

	losses chan error

	mu           sync.RWMutex
	status       SupervisorStatus
	restartCount int
	lastError    error
	lastRecovery time.Time
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewSupervisor attaches a supervisor to agent. It does nothing until Start.
func NewSupervisor(agent *Agent, cfg SupervisorConfig) *Supervisor {
	return newSupervisor(agent, cfg)
}

func newSupervisor(agent reconnector, cfg SupervisorConfig) *Supervisor {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	s := &Supervisor{
		agent:  agent,
		config: cfg,
		logger: nopLogger{},
		losses: make(chan error, 1),
		status: SupervisorIdle,
	}

	agent.OnStateChange(func(change StateChange) {
		if !change.Lost() {
			return
		}
		select {
		case s.losses <- change.Err:
		default:
		}
	})

	return s
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start begins watching for connection losses until ctx is done or Stop
// is called.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.status = SupervisorWatching
	s.mu.Unlock()

	// Discard a loss signalled while nobody was watching.
	select {
	case <-s.losses:
	default:
	}

	go s.monitor(ctx)
	return nil
}

// Stop ends supervision and waits for an in-flight attempt to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Supervisor) monitor(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.setStatus(SupervisorStopped)
			return
		case cause := <-s.losses:
			s.logger.Warn("connection lost, reconnecting",
				"error", cause,
				"max_attempts", s.config.MaxAttempts,
			)
		}

		s.setStatus(SupervisorReconnecting)
		attempts, err := s.reconnect(ctx)

		switch {
		case err == nil:
			s.mu.Lock()
			s.status = SupervisorWatching
			s.lastError = nil
			s.lastRecovery = time.Now()
			s.mu.Unlock()
			s.logger.Info("reconnected", "attempts", attempts)
			if s.config.OnRecovered != nil {
				s.config.OnRecovered(attempts)
			}
		case ctx.Err() != nil:
			s.setStatus(SupervisorStopped)
			return
		default:
			s.mu.Lock()
			s.status = SupervisorGaveUp
			s.lastError = err
			s.mu.Unlock()
			s.logger.Error("giving up reconnecting", "attempts", attempts, "error", err)
			if s.config.OnGiveUp != nil {
				s.config.OnGiveUp(err)
			}
			// Keep watching: a later loss after a manual Connect is still handled.
		}
	}
}

// reconnect retries Agent.Reconnect with exponential backoff, bounded by
// MaxAttempts.
func (s *Supervisor) reconnect(ctx context.Context) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.InitialDelay
	b.MaxInterval = s.config.MaxDelay
	b.Multiplier = 2

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		s.mu.Lock()
		s.restartCount++
		s.mu.Unlock()

		if s.config.OnRestart != nil {
			s.config.OnRestart(attempt)
		}

		err := s.agent.Reconnect(ctx)
		switch {
		case err == nil, errors.Is(err, ErrAlreadyConnected):
			return struct{}{}, nil
		case errors.Is(err, ErrNotConnected):
			// Deliberately disconnected; nothing to restore.
			return struct{}{}, backoff.Permanent(err)
		default:
			return struct{}{}, err
		}
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.config.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("reconnect attempt failed",
				"attempt", attempt,
				"error", err,
				"next_attempt_in", next,
			)
		}),
	)
	return attempt, err
}

func (s *Supervisor) setStatus(status SupervisorStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Status returns the current supervisor status.
func (s *Supervisor) Status() SupervisorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SupervisorStats reports reconnect activity.
type SupervisorStats struct {
	Status       SupervisorStatus
	RestartCount int
	LastError    error
	LastRecovery time.Time
}

// Stats returns a snapshot of reconnect activity.
func (s *Supervisor) Stats() SupervisorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SupervisorStats{
		Status:       s.status,
		RestartCount: s.restartCount,
		LastError:    s.lastError,
		LastRecovery: s.lastRecovery,
	}
}
