package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/sous/pkg/reporter"
	"github.com/openfroyo/sous/pkg/stores"
)

func newHistoryCommand(flags *globalFlags, version string) *cobra.Command {
	var (
		limit  int
		offset int
		kind   string
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs",
		Long: `List the runs recorded by apply and watch, newest first.

With a run id, print the events of that run instead: phases, features,
file operations and dependency operations in the order they happened.`,
		Example: `  # List the last 20 runs
  sous history

  # Show the file operations of one run
  sous history 6f1c9a2e-... --kind file`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, version)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			store, err := s.openHistory(ctx)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("history is disabled in %s", sourceName(s))
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				runs, err := store.ListRuns(ctx, limit, offset)
				if err != nil {
					return err
				}
				if flags.jsonOutput {
					return encodeJSON(cmd, runs)
				}
				_, err = fmt.Fprintln(out, reporter.RunsTable(runs))
				return err
			}

			if _, err := store.GetRun(ctx, args[0]); err != nil {
				return err
			}
			var filter *stores.EventKind
			if kind != "" {
				k := stores.EventKind(kind)
				filter = &k
			}
			events, err := store.RunEvents(ctx, args[0], filter)
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return encodeJSON(cmd, events)
			}
			_, err = fmt.Fprintln(out, reporter.EventsTable(events))
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().StringVar(&kind, "kind", "", "only show events of this kind: phase, feature, file or dependency")

	return cmd
}

func encodeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sourceName(s *session) string {
	if s.cfg.Source == "" {
		return "the default configuration"
	}
	return s.cfg.Source
}
