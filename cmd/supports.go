package cmd

import (
	"github.com/josephlewis42/cmdrun/core/book"
	"github.com/spf13/cobra"
)

// supportsCmd is called by mdBook to check if a renderer is supported.
var supportsCmd = &cobra.Command{
	Use:   "supports RENDERER",
	Short: "Check whether a renderer is supported by this preprocessor.",
	Long:  `Exits with status 0 if the renderer is supported and 1 otherwise.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		if book.SupportsRenderer(args[0]) {
			return nil
		}
		return exitCodeError(1)
	},
}

func init() {
	rootCmd.AddCommand(supportsCmd)
}
