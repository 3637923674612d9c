package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/sous/pkg/engine"
	"github.com/openfroyo/sous/pkg/telemetry"
)

func newPlanCommand(flags *globalFlags, version string) *cobra.Command {
	var dotFile string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would converge",
		Long: `Collect every feature's intent and print it without touching the disk.

The plan lists managed files, dependency requests, resolutions and tasks,
each with the feature that declared it. Policies are evaluated, so a plan
fails exactly where apply would.`,
		Example: `  # Print the plan
  sous plan

  # Print the plan as JSON
  sous plan --json

  # Also write the feature order as a DOT graph
  sous plan --dot features.dot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, version)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, span := s.tel.Tracer.StartCommandSpan(cmd.Context(), "plan", s.dir)
			defer span.End()

			ws, feats, gate, err := s.load(ctx)
			if err != nil {
				telemetry.RecordError(span, err)
				return err
			}

			plan, err := s.newEngine(engine.Options{Gate: gate}).Plan(ctx, ws, feats)
			if err != nil {
				telemetry.RecordError(span, err)
				return err
			}

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(engine.FeatureGraphDOT(feats)), 0o644); err != nil {
					return fmt.Errorf("failed to write DOT graph: %w", err)
				}
				s.logger.Info().Str("file", dotFile).Msg("Feature graph written")
			}

			s.console(cmd.OutOrStdout()).Plan(plan)
			return nil
		},
	}

	cmd.Flags().StringVar(&dotFile, "dot", "", "write the feature order as a DOT graph")

	return cmd
}
