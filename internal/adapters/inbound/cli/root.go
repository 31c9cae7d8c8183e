package cli

import "github.com/spf13/cobra"

var (
	version = "dev"
	commit  = "none"
)

// globalFlags are shared by every command.
type globalFlags struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "layerfix",
		Short: "Move business logic back where it belongs",
		Long: "layerfix classifies the units of a layered Java project, detects business logic that leaked " +
			"into controllers, repositories and entities, and relocates it into the service layer.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to log_level in .layerfix.yaml")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newFixCmd(g))
	cmd.AddCommand(newDetectCmd(g))
	cmd.AddCommand(newRulesCmd(g))
	cmd.AddCommand(newHistoryCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newMCPCmd(g))
	cmd.AddCommand(newInitCmd())
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}
