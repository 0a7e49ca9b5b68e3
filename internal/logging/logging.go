// Package logging builds the zap loggers used by the commands.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// New returns a development logger when debug is set and a production logger otherwise.
// A non-empty file redirects all output there.
func New(debug bool, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, err
		}
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}
	return cfg.Build()
}

// ForTerminalUI returns a logger that never writes to the terminal: output goes to file,
// or nowhere when file is empty.
func ForTerminalUI(debug bool, file string) (*zap.Logger, error) {
	if file == "" {
		return zap.NewNop(), nil
	}
	return New(debug, file)
}
