package commands

import (
	"github.com/spf13/cobra"
)

func newApplyCommand(flags *globalFlags, version string) *cobra.Command {
	var opts applyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the workspace",
		Long: `Converge the workspace to the state its features declare.

This command:
  - Discovers the workspace packages
  - Runs every feature recipe, then every garnish
  - Checks the collected intent against policy
  - Writes generated files and converges package manifests
  - Records the run in the history database

Files edited outside sous are left alone and reported unless --interactive
confirms the overwrite. A run that leaves such files or errors behind exits 1.`,
		Example: `  # Converge the workspace in the current directory
  sous apply

  # Converge another workspace without prompting
  sous apply --cwd ../web --interactive=false

  # Fail on the first hand-edited file (CI)
  sous apply --throw-on-manual-changes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, version)
			if err != nil {
				return err
			}
			defer s.close()

			summary, err := s.apply(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
			if err != nil {
				return err
			}
			if summary.Dirty {
				return ErrDirty
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", defaultInteractive(), "ask before overwriting hand-edited files")
	cmd.Flags().BoolVar(&opts.throwOnManualChanges, "throw-on-manual-changes", false, "abort on the first hand-edited file")

	return cmd
}
