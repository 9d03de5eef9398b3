package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/lonhq/lonup/internal/config"
	"github.com/lonhq/lonup/internal/output"
)

// ExitError carries an outcome-specific process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// loadConfig resolves and loads the updater configuration using the global
// --config flag.
func loadConfig() (*config.Config, error) {
	path, err := config.Find(configPath)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// newLogger builds the event logger honoring --verbose/--quiet. When the
// config names a log path, events are mirrored to that file append-only.
// The returned closer must be called before exit.
func newLogger(cfg *config.Config) (*log.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closer := func() {}

	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.LogPath, err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = func() { _ = f.Close() }
	}

	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "lonup",
		ReportTimestamp: true,
	})
	switch {
	case quiet:
		logger.SetLevel(log.ErrorLevel)
	case verbose:
		logger.SetLevel(log.DebugLevel)
	}

	return logger, closer, nil
}

// outputWriter builds the stdout writer for the global --output flag.
func outputWriter() (*output.Writer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewWriter(os.Stdout, format), nil
}

// formatSize formats a byte size as a human-readable string.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
