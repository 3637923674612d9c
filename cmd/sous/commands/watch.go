package commands

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/sous/pkg/config"
	"github.com/openfroyo/sous/pkg/telemetry"
)

func newWatchCommand(flags *globalFlags, version string) *cobra.Command {
	var throwOnManualChanges bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-converge when configuration changes",
		Long: `Apply once, then apply again whenever the configuration file, a feature
script or a policy changes. Runs are never interactive.

When metrics.listenAddress is configured, Prometheus metrics of every run
are served there until the command stops.`,
		Example: `  # Watch the current workspace
  sous watch

  # Abort runs on hand-edited files instead of skipping them
  sous watch --throw-on-manual-changes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, version)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := s.log.NewComponentLogger("watch").WithContext(cmd.Context())
			if addr := s.cfg.Metrics.ListenAddress; addr != "" && s.cfg.Metrics.Enabled {
				srv := s.tel.Metrics.NewServer()
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						s.logger.Error().Err(err).Str("address", addr).Msg("Metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				s.logger.Info().Str("address", addr).Msg("Serving metrics")
			}

			paths, err := config.PathsFor(s.cfg)
			if err != nil {
				return err
			}
			w, err := config.NewWatcher(paths, s.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			opts := applyOptions{throwOnManualChanges: throwOnManualChanges}
			s.watchRun(ctx, out, opts)
			s.logger.Info().Int("paths", len(paths)).Msg("Watching for changes")
			return w.Run(ctx, func(ctx context.Context) {
				if err := s.reload(); err != nil {
					telemetry.FromContext(ctx).WithError(err).Error("Configuration is invalid, skipping run")
					return
				}
				s.watchRun(ctx, out, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&throwOnManualChanges, "throw-on-manual-changes", false, "abort a run on the first hand-edited file")

	return cmd
}

// watchRun applies once and logs the outcome through the context logger. Errors
// never stop the watch.
func (s *session) watchRun(ctx context.Context, out io.Writer, opts applyOptions) {
	log := telemetry.FromContext(ctx)
	summary, err := s.apply(ctx, nil, out, opts)
	if summary != nil {
		log = log.WithRunID(summary.RunID)
	}
	switch {
	case err != nil:
		log.WithError(err).Error("Run failed")
	case summary.Dirty:
		log.WithField("needs_review", summary.NeedsReview).Warn("Run left the workspace dirty")
	default:
		log.Info("Workspace converged")
	}
}
