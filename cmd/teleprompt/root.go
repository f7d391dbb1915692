package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "teleprompt",
		Short: "Speech-following teleprompter",
		Long: `teleprompt aligns live speech recognition against a script and
publishes the reading position over HTTP and WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newReplayCmd(), newVersionCmd())
	return root
}
