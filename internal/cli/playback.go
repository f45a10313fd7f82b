package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RandomStudio/tether/internal/recording"
)

const defaultPlaybackFile = "./demo.json"

type playbackOptions struct {
	file          string
	fromDB        string
	topicFilters  string
	overrideTopic string
	speed         float64
	loops         int
	infinite      bool
	qos           int
}

func newPlaybackCmd(a *app) *cobra.Command {
	opts := &playbackOptions{}

	cmd := &cobra.Command{
		Use:   "playback [file]",
		Short: "Replay a recording with its original timing",
		Long: `Publish the rows of a recording, waiting each row's deltaTime (divided by
--playback.speed) before sending it.

Rows come from a JSON recording file, or from the recordings database with
--recording <name>.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.file = defaultPlaybackFile
			if len(args) == 1 {
				opts.file = args[0]
			}
			return a.run(cmd.Context(), func(ctx context.Context) error {
				return a.playback(ctx, opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.fromDB, "recording", "", "play the named recording from the database instead of a file")
	f.StringVar(&opts.topicFilters, "topic.filter", "", "comma-separated substrings; only rows whose topic contains one are played")
	f.StringVar(&opts.overrideTopic, "topic.override", "", "publish every row on this topic instead of its own")
	f.Float64Var(&opts.speed, "playback.speed", 1.0, "speed factor (2.0 plays twice as fast)")
	f.IntVar(&opts.loops, "loops.count", 1, "how many times to play the recording")
	f.BoolVar(&opts.infinite, "loops.infinite", false, "loop until interrupted (ignores --loops.count)")
	f.IntVar(&opts.qos, "qos", 1, "QoS level for replayed messages")

	return cmd
}

func (a *app) loadRows(ctx context.Context, opts *playbackOptions) ([]recording.Row, error) {
	if opts.fromDB == "" {
		return recording.ReadJSONFile(opts.file)
	}
	db, err := a.openRecordings(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck // Read-only use
	return recording.NewSQLiteStore(db).Load(ctx, opts.fromDB)
}

func (a *app) playback(ctx context.Context, opts *playbackOptions) error {
	if opts.qos < 0 || opts.qos > 2 {
		return fmt.Errorf("--qos must be 0, 1 or 2, not %d", opts.qos)
	}

	rows, err := a.loadRows(ctx, opts)
	if err != nil {
		return err
	}
	a.log.Info("loaded recording", "rows", len(rows))

	agent, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer agent.Disconnect()

	player, err := recording.NewPlayer(agent, recording.PlayOptions{
		Filters:       recording.ParseFilters(opts.topicFilters),
		OverrideTopic: opts.overrideTopic,
		Speed:         opts.speed,
		Loops:         opts.loops,
		Infinite:      opts.infinite,
		QoS:           byte(opts.qos),
	})
	if err != nil {
		return err
	}
	player.SetLogger(a.log)

	stats, err := player.Play(ctx, rows)
	if err != nil && !stopped(err) {
		return err
	}
	fmt.Fprintf(a.out, "played %d messages in %d loops (%d skipped)\n", stats.Published, stats.Loops, stats.Skipped)
	return nil
}
