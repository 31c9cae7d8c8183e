package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/tui"
	"github.com/abdidvp/layerfix/internal/bootstrap"
)

func newRulesCmd(g *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rules [path]",
		Short: "List the active rule catalog",
		Long:  "List the rules in effect for a project, after .layerfix.yaml and the knowledge base are applied.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir(argOrDot(args))
			if err != nil {
				return err
			}
			app, err := setup(g, dir, bootstrap.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			all := app.Service.Catalog().Rules()
			if jsonOutput {
				return renderJSON(cmd, all)
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderRules(all))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the catalog as JSON")
	return cmd
}
