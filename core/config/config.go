package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	shlex "github.com/anmitsu/go-shlex"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
)

const (
	// ConfigurationName is the mdBook project file.
	ConfigurationName = "book.toml"
	// DefaultSourceDir is used when book.toml doesn't set book.src.
	DefaultSourceDir = "src"
	// PreprocessorName is the key of the preprocessor's table in book.toml.
	PreprocessorName = "cmdrun"
)

// Configuration is the subset of book.toml cmdrun cares about.
type Configuration struct {
	configFs afero.Fs
	root     string

	Book         Book         `toml:"book" json:"book"`
	Preprocessor Preprocessor `toml:"preprocessor" json:"preprocessor"`
}

type Book struct {
	Title string `toml:"title" json:"title,omitempty"`
	Src   string `toml:"src" json:"src"`
}

type Preprocessor struct {
	Cmdrun Options `toml:"cmdrun" json:"cmdrun"`
}

// Options are read from the [preprocessor.cmdrun] table.
type Options struct {
	// Shell overrides the interpreter, e.g. "bash -o pipefail -c". The
	// command is appended as the final argument.
	Shell string `toml:"shell" json:"shell,omitempty" validate:"omitempty,shellwords"`
	// Timeout is the maximum time a single command may run, e.g. "30s".
	Timeout string `toml:"timeout" json:"timeout,omitempty" validate:"omitempty,goduration"`
	// EventLog is a path that directive events are appended to. It must be
	// relative and stay inside the book root.
	EventLog string `toml:"event_log" json:"event_log,omitempty" validate:"omitempty,bookpath"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	validate.RegisterValidation("goduration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= 0
	})
	validate.RegisterValidation("shellwords", func(fl validator.FieldLevel) bool {
		words, err := shlex.Split(fl.Field().String(), true)
		return err == nil && len(words) > 0
	})

	validate.RegisterValidation("bookpath", func(fl validator.FieldLevel) bool {
		return isBookPath(fl.Field().String())
	})

	return validate.Struct(c)
}

// isBookPath reports whether name is a relative path that doesn't climb out
// of the directory it's resolved against.
func isBookPath(name string) bool {
	slashed := filepath.ToSlash(name)
	if filepath.IsAbs(name) || strings.HasPrefix(slashed, "/") || filepath.VolumeName(name) != "" {
		return false
	}

	clean := filepath.ToSlash(filepath.Clean(name))
	return clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// Root is the book's root directory.
func (c *Configuration) Root() string {
	return c.root
}

// SourceDir is the directory chapter paths are relative to.
func (c *Configuration) SourceDir() string {
	src := c.Book.Src
	if src == "" {
		src = DefaultSourceDir
	}
	if filepath.IsAbs(src) {
		return src
	}
	return filepath.Join(c.root, src)
}

// Timeout returns the per-command limit, zero if commands may run forever.
func (c *Configuration) Timeout() time.Duration {
	d, err := time.ParseDuration(c.Preprocessor.Cmdrun.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ShellArgv splits the shell override into arguments, nil means the platform
// default should be used.
func (c *Configuration) ShellArgv() ([]string, error) {
	if c.Preprocessor.Cmdrun.Shell == "" {
		return nil, nil
	}
	return shlex.Split(c.Preprocessor.Cmdrun.Shell, true)
}

// HasEventLog is true if directive events should be persisted.
func (c *Configuration) HasEventLog() bool {
	return c.Preprocessor.Cmdrun.EventLog != ""
}

// OpenEventLog opens the event log in an append only state.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	name := c.Preprocessor.Cmdrun.EventLog
	if dir := filepath.Dir(name); dir != "." {
		if err := c.fs().MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	return c.fs().OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadEventLog opens the event log for reading.
func (c *Configuration) ReadEventLog() (afero.File, error) {
	return c.fs().OpenFile(c.Preprocessor.Cmdrun.EventLog, os.O_RDONLY, 0600)
}

func defaultConfig(fs afero.Fs, root string) *Configuration {
	return &Configuration{
		configFs: fs,
		root:     root,
		Book: Book{
			Src: DefaultSourceDir,
		},
	}
}
