package config

import (
	"errors"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
)

// Load loads the configuration from the book root directory.
//
// A missing or unparsable book.toml isn't fatal, the defaults are used
// instead. Options that parse but are invalid are returned as an error.
func Load(base afero.Fs, path string, logger *log.Logger) (*Configuration, error) {
	// If given the path to a book.toml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}
	// BasePathFs rejects relative bases.
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	bookFs := afero.NewBasePathFs(base, path)
	out := defaultConfig(bookFs, path)

	configContents, err := afero.ReadFile(bookFs, ConfigurationName)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return out, nil
	case err != nil:
		return nil, err
	}

	if _, err := toml.Decode(string(configContents), out); err != nil {
		logger.Printf("Couldn't parse %s, using defaults: %v", filepath.Join(path, ConfigurationName), err)
		return defaultConfig(bookFs, path), nil
	}

	if out.Book.Src == "" {
		out.Book.Src = DefaultSourceDir
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}

	return out, nil
}
