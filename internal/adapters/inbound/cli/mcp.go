package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcpadapter "github.com/abdidvp/layerfix/internal/adapters/inbound/mcp"
	"github.com/abdidvp/layerfix/internal/bootstrap"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server commands",
		Long:  "Commands for running the layerfix MCP (Model Context Protocol) server.",
	}
	cmd.AddCommand(newMCPServeCmd(g))
	return cmd
}

func newMCPServeCmd(g *globalFlags) *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start layerfix MCP server (stdio)",
		Long: "Start the layerfix MCP server using stdio transport. It exposes fix_from_json, fix_from_zipbytes, " +
			"detect_from_json and list_rules to AI coding assistants.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir(projectPath)
			if err != nil {
				return err
			}
			app, err := setup(g, dir, bootstrap.Options{History: true})
			if err != nil {
				return err
			}
			defer app.Close()

			mcpadapter.Version = version
			return server.ServeStdio(mcpadapter.NewServer(app))
		},
	}

	cmd.Flags().StringVar(&projectPath, "path", ".", "Directory holding .layerfix.yaml")

	return cmd
}
