package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/josephlewis42/cmdrun/core"
	"github.com/josephlewis42/cmdrun/core/book"
	"github.com/josephlewis42/cmdrun/core/config"
	"github.com/josephlewis42/cmdrun/core/logger"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	cfgPath string

	// appFs is the filesystem configuration and documents are read from.
	appFs = afero.NewOsFs()

	colorError = color.New(color.FgRed, color.Bold)
)

// exitCodeError ends the program with a status but no message.
type exitCodeError int

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

type listCloser []io.Closer

func (lc listCloser) Close() error {
	var lastErr error
	for _, v := range lc {
		if err := v.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// stderrLogger writes diagnostics for the user; stdout is reserved for the
// book or command output.
func stderrLogger(cmd *cobra.Command) *log.Logger {
	return log.New(cmd.ErrOrStderr(), "", 0)
}

func loadConfig(root string, stderrLog *log.Logger) (*config.Configuration, error) {
	return config.Load(appFs, root, stderrLog)
}

// newProcessor builds a Processor from the configuration. The returned closer
// must be closed when processing is finished.
func newProcessor(cfg *config.Configuration) (*core.Processor, io.Closer, error) {
	shell, err := cfg.ShellArgv()
	if err != nil {
		return nil, nil, err
	}

	opts := []core.ProcessorOption{
		core.WithPlatform(core.HostPlatform().WithShell(shell)),
		core.WithTimeout(cfg.Timeout()),
	}

	var toClose listCloser
	if cfg.HasEventLog() {
		fd, err := cfg.OpenEventLog()
		if err != nil {
			return nil, nil, err
		}
		toClose = append(toClose, fd)
		opts = append(opts, core.WithRecorder(logger.NewJsonLinesLogRecorder(fd)))
	}

	return core.NewProcessor(opts...), toClose, nil
}

// rootCmd runs the preprocessor when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cmdrun",
	Short: "mdBook preprocessor that runs shell commands",
	Long: `An mdBook preprocessor that replaces <!-- cmdrun COMMAND --> directives
with the output of COMMAND.

Without a subcommand, the [context, book] JSON sent by mdBook is read from
stdin and the processed book is written to stdout.`,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		stderrLog := stderrLogger(cmd)

		var toClose listCloser
		defer func() {
			toClose.Close()
		}()

		return book.Handle(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), stderrLog, func(mdbookCtx *book.Context) (*book.Preprocessor, error) {
			root := cfgPath
			if mdbookCtx.Root != "" && !cmd.Flags().Changed("config") {
				root = mdbookCtx.Root
			}

			cfg, err := loadConfig(root, stderrLog)
			if err != nil {
				return nil, err
			}

			processor, closer, err := newProcessor(cfg)
			if err != nil {
				return nil, err
			}
			toClose = append(toClose, closer)

			return &book.Preprocessor{
				Processor: processor,
				SourceDir: cfg.SourceDir(),
			}, nil
		})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()

	var exitCode exitCodeError
	switch {
	case err == nil:
		return
	case errors.As(err, &exitCode):
		os.Exit(int(exitCode))
	default:
		colorError.Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "book root containing book.toml")
}
