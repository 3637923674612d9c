package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ErrDirty is returned when a run left conflicts or errors behind.
var ErrDirty = errors.New("run left the workspace dirty")

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	cwd        string
	configPath string
	verbose    bool
	logFormat  string
	jsonOutput bool
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "sous",
		Short: "sous - declarative workspace convergence",
		Long: `sous keeps a JavaScript workspace in the state its features describe.

Features declare generated files, dependencies, manifest fields and tasks.
Every run collects those intents, checks them against policy and converges
the working tree, leaving hand-edited files alone unless told otherwise.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.cwd, "cwd", "C", ".", "workspace root")
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file path (default: sous.yaml or sous.cue in the workspace)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format: console or json (default from config)")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newApplyCommand(flags, version))
	rootCmd.AddCommand(newPlanCommand(flags, version))
	rootCmd.AddCommand(newPublishManifestCommand(flags, version))
	rootCmd.AddCommand(newHistoryCommand(flags, version))
	rootCmd.AddCommand(newWatchCommand(flags, version))

	return rootCmd
}
