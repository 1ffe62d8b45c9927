package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	runDir   string
	runJobs  int
	runWrite bool
)

// runCmd processes standalone markdown files outside of mdBook.
var runCmd = &cobra.Command{
	Use:   "run FILE...",
	Short: "Replace the cmdrun directives in markdown files.",
	Long: `Replace the cmdrun directives in markdown files and print the results in
argument order.

Commands run in the directory of the file they appear in unless --dir is set.
Settings are read from the book.toml in --config, if present.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runJobs < 1 {
			return fmt.Errorf("--jobs must be at least 1, got %d", runJobs)
		}
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cfgPath, stderrLogger(cmd))
		if err != nil {
			return err
		}

		processor, closer, err := newProcessor(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		results := make([]string, len(args))

		group, ctx := errgroup.WithContext(cmd.Context())
		group.SetLimit(runJobs)
		for i, name := range args {
			i, name := i, name
			group.Go(func() error {
				info, err := appFs.Stat(name)
				if err != nil {
					return err
				}

				content, err := afero.ReadFile(appFs, name)
				if err != nil {
					return err
				}

				dir := runDir
				if dir == "" {
					dir = filepath.Dir(name)
				}

				out, err := processor.Process(ctx, string(content), dir)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}

				if runWrite {
					return afero.WriteFile(appFs, name, []byte(out), info.Mode().Perm())
				}
				results[i] = out
				return nil
			})
		}

		if err := group.Wait(); err != nil {
			return err
		}

		if !runWrite {
			for _, out := range results {
				fmt.Fprint(cmd.OutOrStdout(), out)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runDir, "dir", "C", "", "run every command in this directory")
	runCmd.Flags().IntVarP(&runJobs, "jobs", "j", 1, "number of files to process at once")
	runCmd.Flags().BoolVarP(&runWrite, "write", "w", false, "overwrite the files instead of printing them")
}
