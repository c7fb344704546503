package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/orderpilot-ai/orderpilot/mcp"
	"github.com/orderpilot-ai/orderpilot/toolset"
)

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed by the configured endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTools(cmd)
		},
	}
}

func runTools(cmd *cobra.Command) error {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	tools, err := toolset.NewAggregator(mcp.NewClient(), cfg.Endpoints)
	if err != nil {
		return err
	}

	catalog, err := tools.ListAllTools(cmd.Context(), token)
	if err != nil {
		return err
	}
	if len(catalog) == 0 {
		fmt.Println("No tools available.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tENDPOINT\tDESCRIPTION")
	for _, t := range catalog {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Endpoint.Key, t.Description)
	}
	return w.Flush()
}
