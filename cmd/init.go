package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/josephlewis42/cmdrun/core/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Register the preprocessor in an existing book.",
	Long: `Append an empty [preprocessor.cmdrun] table to the book.toml in --config so
mdBook runs cmdrun on the next build. Books that already have the table are
left alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		modified, err := config.Initialize(appFs, cfgPath, stderrLogger(cmd))
		if err != nil {
			return fmt.Errorf("couldn't register preprocessor: %w", err)
		}

		if modified {
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(cfgPath, config.ConfigurationName))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
