package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
)

const preprocessorTable = "\n[preprocessor." + PreprocessorName + "]\n"

// Initialize registers the preprocessor in the book.toml found in dir.
//
// It returns true if book.toml was modified.
func Initialize(base afero.Fs, dir string, logger *log.Logger) (bool, error) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	bookFs := afero.NewBasePathFs(base, dir)

	contents, err := afero.ReadFile(bookFs, ConfigurationName)
	if err != nil {
		return false, err
	}

	var raw map[string]interface{}
	meta, err := toml.Decode(string(contents), &raw)
	if err != nil {
		return false, fmt.Errorf("%s: failed to parse TOML: %w", ConfigurationName, err)
	}

	if meta.IsDefined("preprocessor", PreprocessorName) {
		logger.Printf("%s already enables the %s preprocessor", ConfigurationName, PreprocessorName)
		return false, nil
	}

	fd, err := bookFs.OpenFile(ConfigurationName, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return false, err
	}
	defer fd.Close()

	if _, err := fd.WriteString(preprocessorTable); err != nil {
		return false, err
	}

	logger.Printf("Added [preprocessor.%s] to %s", PreprocessorName, ConfigurationName)
	return true, nil
}
