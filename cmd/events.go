package cmd

import (
	"errors"
	"fmt"

	"github.com/josephlewis42/cmdrun/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the directive event log.",
}

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Show a report of directive executions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		config, err := loadConfig(cfgPath, stderrLogger(cmd))
		if err != nil {
			return err
		}
		if !config.HasEventLog() {
			return errors.New("no event_log set in [preprocessor.cmdrun]")
		}

		fd, err := config.ReadEventLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		report := logger.NewReport()
		if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
			return err
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(reportCommand)
}
