package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RandomStudio/tether"
	"github.com/RandomStudio/tether/internal/infrastructure/database"
	"github.com/RandomStudio/tether/internal/recording"
	"github.com/RandomStudio/tether/migrations"
)

// Recording destinations accepted by --store.
const (
	storeJSON   = "json"
	storeSQLite = "sqlite"
	storeBoth   = "both"
)

type recordOptions struct {
	filePath     string
	fileBase     string
	fileName     string
	noTimestamp  bool
	topic        string
	nonZeroStart bool
	delay        time.Duration
	duration     time.Duration
	store        string
	name         string
}

func newRecordCmd(a *app) *cobra.Command {
	opts := &recordOptions{}

	cmd := &cobra.Command{
		Use:   "record [file]",
		Short: "Record messages to a JSON file or the recordings database",
		Long: `Subscribe and record every message with its timing until interrupted
or until --timing.duration has passed.

The JSON file is an array of {"topic", "message", "deltaTime"} rows that
"tether playback" can replay. With --store sqlite the rows are kept in the
recordings database instead (database.path in the config).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.filePath = args[0]
			}
			return a.run(cmd.Context(), func(ctx context.Context) error {
				return a.record(ctx, opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.fileBase, "file.path", ".", "directory for the recording file")
	f.StringVar(&opts.fileName, "file.name", "recording", "base name for the recording file, without timestamp or extension")
	f.BoolVar(&opts.noTimestamp, "file.noTimestamp", false, "do not append a timestamp to the file name")
	f.StringVar(&opts.topic, "topic", recording.DefaultFilter, "subscription filter to record")
	f.BoolVar(&opts.nonZeroStart, "timing.nonzeroStart", false, "time the first row from launch rather than giving it zero delay")
	f.DurationVar(&opts.delay, "timing.delay", 0, "ignore messages for this long after starting")
	f.DurationVar(&opts.duration, "timing.duration", 0, "stop after recording for this long (0: until interrupted)")
	f.StringVar(&opts.store, "store", storeJSON, "where to record: json, sqlite or both")
	f.StringVar(&opts.name, "name", "", "recording name in the database (default: the file base name)")

	return cmd
}

func (a *app) record(ctx context.Context, opts *recordOptions) error {
	store := strings.ToLower(opts.store)
	if store != storeJSON && store != storeSQLite && store != storeBoth {
		return fmt.Errorf("--store must be json, sqlite or both, not %q", opts.store)
	}
	if err := tether.ValidateFilter(opts.topic); err != nil {
		return err
	}

	now := time.Now()
	path := opts.filePath
	if path == "" {
		path = recording.FilePath(opts.fileBase, opts.fileName, !opts.noTimestamp, now)
	}

	var sinks []recording.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close() //nolint:errcheck // Error path cleanup
		}
	}

	if store == storeJSON || store == storeBoth {
		sink, err := recording.CreateJSONFile(path)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
		a.log.Info("writing recording file", "path", path)
	}

	if store == storeSQLite || store == storeBoth {
		db, err := a.openRecordings(ctx)
		if err != nil {
			closeAll()
			return err
		}
		defer db.Close() //nolint:errcheck // Closed after the recorder has finished

		name := opts.name
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		sink, err := recording.NewSQLiteStore(db).Create(ctx, name, opts.topic)
		if err != nil {
			closeAll()
			return err
		}
		sinks = append(sinks, sink)
		a.log.Info("writing recording to database", "path", db.Path(), "name", name)
	}

	agent, err := a.connect(ctx)
	if err != nil {
		closeAll()
		return err
	}
	defer agent.Disconnect()

	stop, err := a.supervise(ctx, agent)
	if err != nil {
		closeAll()
		return err
	}
	defer stop()

	rec := recording.NewRecorder(recording.Options{
		Filter:       opts.topic,
		StartDelay:   opts.delay,
		MaxDuration:  opts.duration,
		NonZeroStart: opts.nonZeroStart,
	}, sinks...)
	rec.SetLogger(a.log)

	if err := rec.Run(ctx, agent); err != nil && !stopped(err) {
		return err
	}
	fmt.Fprintf(a.out, "recorded %d messages\n", rec.Count())
	return nil
}

// openRecordings opens and migrates the recordings database.
func (a *app) openRecordings(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening recordings database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
		return nil, errors.Join(fmt.Errorf("migrating recordings database: %w", err), db.Close())
	}
	return db, nil
}
