package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/RandomStudio/tether"
	"github.com/RandomStudio/tether/internal/infrastructure/influxdb"
	"github.com/RandomStudio/tether/internal/insights"
)

const topicsPlugName = "monitor"

type topicsOptions struct {
	topic          string
	sampleInterval time.Duration
	printInterval  time.Duration
	exportInterval time.Duration
	once           time.Duration
}

func newTopicsCmd(a *app) *cobra.Command {
	opts := &topicsOptions{}

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Summarise which agents, roles and plugs are active",
		Long: `Watch broker traffic and report unique topics, agent roles, IDs and
plug names, grouped per role, with message counts and rates.

With influxdb.enabled in the config, per-topic samples are also written to
InfluxDB.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), func(ctx context.Context) error {
				return a.topics(ctx, opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.topic, "topic", "#", "subscription filter to monitor")
	f.DurationVar(&opts.sampleInterval, "sampler.interval", insights.DefaultSampleInterval, "message-rate sampling interval")
	f.DurationVar(&opts.printInterval, "print.interval", 0, "also reprint the summary at this interval (0: only on change)")
	f.DurationVar(&opts.exportInterval, "export.interval", 10*time.Second, "InfluxDB export interval")
	f.DurationVar(&opts.once, "duration", 0, "stop after this long and print a final summary (0: until interrupted)")

	return cmd
}

func (a *app) topics(ctx context.Context, opts *topicsOptions) error {
	if err := tether.ValidateFilter(opts.topic); err != nil {
		return err
	}
	if opts.once > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.once)
		defer cancel()
	}

	agent, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer agent.Disconnect()

	stop, err := a.supervise(ctx, agent)
	if err != nil {
		return err
	}
	defer stop()

	in := insights.New(opts.sampleInterval)
	changed := make(chan struct{}, 1)
	_, err = agent.CreateInput(topicsPlugName, func(payload []byte, topic string) {
		if in.Update(topic, payload) {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
	}, tether.WithTopic(opts.topic))
	if err != nil {
		return err
	}
	a.log.Info("monitoring topics", "filter", opts.topic)

	if a.cfg.InfluxDB.Enabled {
		influx, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influx.Close(); closeErr != nil {
				a.log.Error("error closing InfluxDB", "error", closeErr)
			}
			a.log.Info("InfluxDB export finished", "points", influx.Points())
		}()
		influx.SetOnError(func(err error) {
			a.log.Error("InfluxDB write error", "error", err)
		})
		a.log.Info("exporting topic samples", "url", a.cfg.InfluxDB.URL, "bucket", a.cfg.InfluxDB.Bucket)

		exportDone := make(chan struct{})
		go func() {
			defer close(exportDone)
			insights.NewExporter(in, influx).Run(ctx, opts.exportInterval)
		}()
		defer func() { <-exportDone }()
	}

	sampleTicker := time.NewTicker(opts.sampleInterval)
	defer sampleTicker.Stop()

	var printTick <-chan time.Time
	if opts.printInterval > 0 {
		t := time.NewTicker(opts.printInterval)
		defer t.Stop()
		printTick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			a.printTopics(in)
			return nil
		case <-changed:
			a.printTopics(in)
		case <-printTick:
			a.printTopics(in)
		case <-sampleTicker.C:
			if in.Sample() {
				a.log.Debug("sampled message count", "total", in.MessageCount())
			}
		}
	}
}

func (a *app) printTopics(in *insights.Insights) {
	fmt.Fprint(a.out, in.String())
	if rate, ok := in.Rate(); ok {
		fmt.Fprintf(a.out, "\n%d messages, %.2f/s\n", in.MessageCount(), rate)
	}
	fmt.Fprintln(a.out)
}
