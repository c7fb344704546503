package main

import (
	"fmt"
	"os"

	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	token   string
	debug   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "orderpilot",
		Short:         "Conversational ordering assistant driving remote tool servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// Logs go to stderr so they never interleave with the chat
			// transcript on stdout.
			xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
			if debug {
				xlog.SetGlobalLogLevel(xlog.DEBUG)
			} else {
				xlog.SetGlobalLogLevel(xlog.ERROR)
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "cfg", "orderpilot.yaml", "configuration file")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("ORDERPILOT_TOKEN"), "bearer credential forwarded to tool servers")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newChatCmd())
	root.AddCommand(newToolsCmd())
	return root
}
