package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"captioner/internal/config"
)

// LogFileName is the file NewFromConfig appends to inside the log directory.
const LogFileName = "captioner.log"

// Options describes logger construction parameters.
type Options struct {
	Level string
	// Format is "console" (default) or "json".
	Format string
	// Writers receive every record. Empty means stdout.
	Writers []io.Writer
}

// New constructs a logger from opts.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	var out io.Writer = os.Stdout
	switch len(opts.Writers) {
	case 0:
	case 1:
		out = opts.Writers[0]
	default:
		out = io.MultiWriter(opts.Writers...)
	}

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(newConsoleHandler(out, level)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level, ReplaceAttr: jsonKeys})), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig logs to stdout and, when a log directory is configured, to
// LogFileName inside it.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	writers := []io.Writer{os.Stdout}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		file, err := os.OpenFile(filepath.Join(dir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, file)
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Writers: writers})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func jsonKeys(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}
	switch attr.Key {
	case slog.TimeKey:
		return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339))
	case slog.LevelKey:
		return slog.String("level", strings.ToLower(attr.Value.String()))
	}
	return attr
}
