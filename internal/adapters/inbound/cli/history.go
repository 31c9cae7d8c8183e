package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/tui"
	"github.com/abdidvp/layerfix/internal/bootstrap"
)

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var (
		jsonOutput bool
		project    string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history [path]",
		Short: "Show past fix runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir(argOrDot(args))
			if err != nil {
				return err
			}
			app, err := setup(g, dir, bootstrap.Options{History: true})
			if err != nil {
				return err
			}
			defer app.Close()
			if app.History == nil {
				return fmt.Errorf("run history unavailable at %s", app.Config.HistoryPath)
			}

			runs, err := app.History.List(project, limit)
			if err != nil {
				return fmt.Errorf("loading history: %w", err)
			}
			if jsonOutput {
				return renderJSON(cmd, runs)
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderHistory(runs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output runs as JSON")
	cmd.Flags().StringVar(&project, "project", "", "Only show runs of this project")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs; 0 shows all")
	return cmd
}
