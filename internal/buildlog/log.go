// Package buildlog provides per-subsystem slog wiring as a small
// reusable helper so every package can expose a UseLogger hook
// without repeating the backend plumbing.
package buildlog

import (
	"io"
	"os"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogWriter is an io.Writer that multiplexes to stdout and, once
// initialized, a rotated log file.
type LogWriter struct {
	RotatorPipe *io.PipeWriter
}

func (w *LogWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.RotatorPipe != nil {
		w.RotatorPipe.Write(p)
	}
	return len(p), nil
}

var (
	writer     = &LogWriter{}
	backendLog = slog.NewBackend(writer)
	logRotator *rotator.Rotator
)

// InitRotator creates the rotating file log sink. It must be called
// before any subsystem logger is used if file logging is desired;
// without it, loggers still work and simply write to stdout.
func InitRotator(logFile string, maxFileSizeKB int64, maxRolls int) error {
	dir := dirOf(logFile)
	if dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	r, err := rotator.New(logFile, maxFileSizeKB*1024, false, maxRolls)
	if err != nil {
		return err
	}
	pr, pw := io.Pipe()
	go r.Run(pr)
	writer.RotatorPipe = pw
	logRotator = r
	return nil
}

// Shutdown closes the rotator, flushing any buffered output.
func Shutdown() {
	if logRotator != nil {
		logRotator.Close()
	}
}

// NewSubLogger returns a tagged logger sharing the backend.
func NewSubLogger(tag string) slog.Logger {
	return backendLog.Logger(tag)
}

// SetLevel returns a new logger for tag set to level. Loggers already
// created for the tag keep their own level; callers track their own
// logger references in a tag->logger map.
func SetLevel(tag string, level slog.Level) slog.Logger {
	l := backendLog.Logger(tag)
	l.SetLevel(level)
	return l
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
