package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/tui"
	"github.com/abdidvp/layerfix/internal/bootstrap"
)

func newDetectCmd(g *globalFlags) *cobra.Command {
	var (
		jsonOutput bool
		ciMode     bool
	)

	cmd := &cobra.Command{
		Use:   "detect [path|project.zip]",
		Short: "Classify units and report layering violations",
		Long:  "Parse and classify every unit, then report rule violations. Nothing is generated or changed, so no API key is needed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := argOrDot(args)
			dir, err := projectDir(target)
			if err != nil {
				return err
			}
			app, err := setup(g, dir, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			project, err := loadProject(cmd.Context(), app, target)
			if err != nil {
				return err
			}
			rep, err := app.Service.Detect(cmd.Context(), project)
			if err != nil {
				return fmt.Errorf("detect failed: %w", err)
			}

			if jsonOutput {
				if err := renderJSON(cmd, rep); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderReport(rep))
			}

			if ciMode && rep.Counts.Violations > 0 {
				return fmt.Errorf("%d violation(s) found", rep.Counts.Violations)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	cmd.Flags().BoolVar(&ciMode, "ci", false, "CI mode: exit 1 when any non-advisory violation is found")

	return cmd
}
