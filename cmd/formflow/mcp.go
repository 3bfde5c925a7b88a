package main

import (
	"github.com/spf13/cobra"

	"github.com/tjfontaine/formflow/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol server on stdio",
	Long: `Starts an MCP server on stdin/stdout exposing the extract_form and
list_forms tools and one schema resource per form. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		return mcp.NewServer(a.svc, version, a.logger).ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
