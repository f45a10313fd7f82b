package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/RandomStudio/tether/internal/recording"
)

func newRecordingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordings",
		Short: "Manage recordings stored in the database",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored recordings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listRecordings(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.deleteRecording(cmd.Context(), args[0])
		},
	})

	return cmd
}

func (a *app) listRecordings(ctx context.Context) error {
	db, err := a.openRecordings(ctx)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Read-only use

	list, err := recording.NewSQLiteStore(db).List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tFILTER\tROWS\tDURATION\tCREATED")
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.Name, r.Filter, r.Rows, r.Duration, r.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func (a *app) deleteRecording(ctx context.Context, name string) error {
	db, err := a.openRecordings(ctx)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Single statement

	if err := recording.NewSQLiteStore(db).Delete(ctx, name); err != nil {
		return err
	}
	a.log.Info("deleted recording", "name", name)
	return nil
}
