package cmd

import (
	"fmt"

	"github.com/josephlewis42/cmdrun/core"
	"github.com/josephlewis42/cmdrun/core/config"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

type effectiveConfig struct {
	Root      string   `json:"root"`
	SourceDir string   `json:"source_dir"`
	Platform  string   `json:"platform"`
	Shell     []string `json:"shell"`
	Timeout   string   `json:"timeout"`
	EventLog  string   `json:"event_log,omitempty"`

	BookToml *config.Configuration `json:"book_toml"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the configuration the preprocessor would run with.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cfgPath, stderrLogger(cmd))
		if err != nil {
			return err
		}

		shell, err := cfg.ShellArgv()
		if err != nil {
			return err
		}
		platform := core.HostPlatform().WithShell(shell)

		timeout := "none"
		if d := cfg.Timeout(); d > 0 {
			timeout = d.String()
		}

		out, err := yaml.Marshal(effectiveConfig{
			Root:      cfg.Root(),
			SourceDir: cfg.SourceDir(),
			Platform:  platform.Name,
			Shell:     platform.Shell,
			Timeout:   timeout,
			EventLog:  cfg.Preprocessor.Cmdrun.EventLog,
			BookToml:  cfg,
		})
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
