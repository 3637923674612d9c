package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/sous/pkg/engine"
)

func newPublishManifestCommand(flags *globalFlags, version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish-manifest <package>",
		Short: "Print the manifest a package publishes with",
		Long: `Print the package.json a package would be published with.

Features may declare publish-only manifest changes. This command collects
them and applies them to a copy of the package manifest. Nothing is written.
The package is named by its manifest name or its path in the workspace.`,
		Example: `  # Print the publish manifest of a member package
  sous publish-manifest @acme/app > dist/package.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags, version)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			ws, feats, gate, err := s.load(ctx)
			if err != nil {
				return err
			}
			pkg := ws.Package(args[0])
			if pkg == nil {
				return engine.NewConfigurationError(fmt.Sprintf("no package %q in the workspace", args[0]), nil).
					WithCode(engine.ErrCodeNotFound)
			}

			if _, err := s.newEngine(engine.Options{Gate: gate}).Plan(ctx, ws, feats); err != nil {
				return err
			}
			m, err := pkg.PublishManifest(ctx)
			if err != nil {
				return err
			}
			data, err := m.Marshal()
			if err != nil {
				return fmt.Errorf("failed to encode manifest: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	return cmd
}
