// Package logging configures the process-wide slog logger, matching the
// teacher's convention of structured key/value logging via log/slog
// everywhere instead of fmt.Printf-style logs.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Setup installs a JSON slog handler writing to both stderr and the
// append-only file logsDir/tinyagi.log (not rotated), and returns the
// configured logger.
func Setup(logsDir string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var writers []io.Writer = []io.Writer{os.Stderr}

	if logsDir != "" {
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return nil, err
		}
		logPath := filepath.Join(logsDir, "tinyagi.log")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
