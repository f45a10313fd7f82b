package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/RandomStudio/tether"
	"github.com/RandomStudio/tether/internal/infrastructure/config"
	"github.com/RandomStudio/tether/internal/infrastructure/logging"
	"github.com/RandomStudio/tether/internal/infrastructure/mqtt"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 2 * time.Second
)

// app holds what every subcommand shares once the root command has loaded
// configuration.
type app struct {
	version string
	cfg     *config.Config
	log     *logging.Logger
	out     io.Writer

	registry *prometheus.Registry
	metrics  *tether.Metrics

	// newBroker builds the transport for each agent. Tests replace it.
	newBroker func(cfg config.MQTTConfig) tether.BrokerClient
}

func newApp(version string, out io.Writer) *app {
	return &app{
		version: version,
		out:     out,
		newBroker: func(cfg config.MQTTConfig) tether.BrokerClient {
			return mqtt.New(cfg)
		},
	}
}

// init finishes setup after flags are parsed.
func (a *app) init(cfg *config.Config) error {
	a.cfg = cfg
	a.log = logging.New(cfg.Logging, a.version)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = tether.NewMetrics()
	if err := a.metrics.Register(a.registry); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	return nil
}

// connect creates an agent with the configured identity and connects it.
// The caller must Disconnect it.
func (a *app) connect(ctx context.Context) (*tether.Agent, error) {
	mqttCfg := a.cfg.MQTT
	client := a.newBroker(mqttCfg)
	if c, ok := client.(*mqtt.Client); ok {
		c.SetLogger(a.log)
	}

	agent, err := tether.NewAgent(a.cfg.Agent.Role, a.cfg.Agent.ID,
		tether.WithBrokerClient(client),
		tether.WithLogger(a.log),
		tether.WithCredentials(mqttCfg.Auth.Username, mqttCfg.Auth.Password),
		tether.WithBasePath(mqttCfg.Broker.BasePath),
		tether.WithConnectTimeout(mqttCfg.GetConnectTimeout()),
		tether.WithDisconnectTimeout(mqttCfg.GetDisconnectQuiesce()),
		tether.WithMetrics(a.metrics),
		tether.WithErrorSink(func(err error) {
			a.log.Warn("agent error", "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	if err := agent.Connect(ctx, mqttCfg.Broker.Protocol, mqttCfg.Broker.Host, mqttCfg.Broker.Port); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", tether.BrokerAddress(mqttCfg.Broker.Protocol, mqttCfg.Broker.Host, mqttCfg.Broker.Port, mqttCfg.Broker.BasePath), err)
	}
	a.log.Info("connected to broker",
		"broker", agent.BrokerURI(),
		"agent", agent.Identity().String(),
	)
	return agent, nil
}

// supervise starts a reconnect supervisor for long-running commands when
// mqtt.reconnect.enabled is set. The returned stop function is always
// safe to call.
func (a *app) supervise(ctx context.Context, agent *tether.Agent) (stop func(), err error) {
	rc := a.cfg.MQTT.Reconnect
	if !rc.Enabled {
		return func() {}, nil
	}

	sup := tether.NewSupervisor(agent, tether.SupervisorConfig{
		InitialDelay: rc.GetInitialDelay(),
		MaxDelay:     rc.GetMaxDelay(),
		MaxAttempts:  rc.MaxAttempts,
		OnRecovered: func(attempts int) {
			a.log.Info("broker connection recovered", "attempts", attempts)
		},
		OnGiveUp: func(err error) {
			a.log.Error("giving up on broker connection", "error", err)
		},
	})
	sup.SetLogger(a.log)
	if err := sup.Start(ctx); err != nil {
		return nil, err
	}
	return sup.Stop, nil
}

// run executes fn, serving /metrics and /health alongside it when metrics are enabled.
// The server is shut down once fn returns.
func (a *app) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !a.cfg.Metrics.Enabled {
		return fn(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           a.buildRouter(),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	g.Go(func() error {
		a.log.Info("serving metrics", "listen", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer close(done)
		return fn(gctx)
	})

	return g.Wait()
}

// stopped reports whether err only signals that the command was interrupted.
func stopped(err error) bool {
	return errors.Is(err, context.Canceled)
}
