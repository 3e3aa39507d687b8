package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelNone disables a log line entirely. Actions use it to opt out of the
// per-invocation completion line.
const LevelNone = slog.Level(1 << 10)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Rotation    RotationConfig
	Audit       AuditConfig
}

// RotationConfig applies to every file output.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AuditConfig controls audit log output behaviour.
type AuditConfig struct {
	Enabled bool
	Path    string
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
)

// Init (re)configures the global logger instances. Outputs opened by a
// previous call are closed once the new handlers are in place.
func Init(cfg Config) error {
	var opened []io.Closer
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	handler, err := buildHandler(cfg.Format, cfg.OutputPaths, cfg.Rotation, handlerOpts, &opened)
	if err != nil {
		closeAll(opened)
		return err
	}
	base := slog.New(handler)

	audit := base
	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			closeAll(opened)
			return errors.New("audit log path cannot be empty when enabled")
		}
		writer := newRotatingFile(cfg.Audit.Path, cfg.Rotation)
		opened = append(opened, writer)
		audit = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	mu.Lock()
	previous := closers
	defaultLogger = base
	auditLogger = audit
	closers = opened
	mu.Unlock()

	closeAll(previous)
	return nil
}

func buildHandler(format string, outputs []string, rotation RotationConfig, opts *slog.HandlerOptions, opened *[]io.Closer) (slog.Handler, error) {
	writers := make([]io.Writer, 0, len(outputs))
	if len(outputs) == 0 {
		writers = append(writers, os.Stdout)
	}
	for _, out := range outputs {
		writer, closer, err := openWriter(out, rotation)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			*opened = append(*opened, closer)
		}
		writers = append(writers, writer)
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(writer, opts), nil
	}
	return slog.NewTextHandler(writer, opts), nil
}

func openWriter(path string, rotation RotationConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file := newRotatingFile(path, rotation)
		return file, file, nil
	}
}

func newRotatingFile(path string, rotation RotationConfig) *lumberjack.Logger {
	if rotation.MaxSizeMB <= 0 {
		rotation.MaxSizeMB = 100
	}
	if rotation.MaxBackups <= 0 {
		rotation.MaxBackups = 7
	}
	if rotation.MaxAgeDays <= 0 {
		rotation.MaxAgeDays = 30
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
	}
}

// ParseLevel maps a textual level to a slog level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "emerg", "crit", "alert":
		return slog.LevelError
	case "none", "off", "disabled":
		return LevelNone
	default:
		return slog.LevelInfo
	}
}

// L returns the structured logger instance.
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	_ = Init(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	mu.RLock()
	l := auditLogger
	mu.RUnlock()
	if l == nil {
		return L()
	}
	return l
}

// Named returns a child logger tagged with the component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Use replaces the global logger; tests use it to capture output.
func Use(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
	auditLogger = l
}

// Sync closes every file output.
func Sync() error {
	mu.Lock()
	previous := closers
	closers = nil
	mu.Unlock()
	return closeAll(previous)
}

func closeAll(list []io.Closer) error {
	var err error
	for _, closer := range list {
		err = errors.Join(err, closer.Close())
	}
	return err
}
