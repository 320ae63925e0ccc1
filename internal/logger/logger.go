// Package logger provides structured logging with colored console output,
// optional file output, and per-component logger prefixing using log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/Guliveer/steam-gameloader-go/internal/model"
)

var eventEmoji = map[string]string{
	"DOWNLOAD_SUCCESS": "📥",
	"DOWNLOAD_FAILED":  "❌",
	"FIX_APPLIED":      "🔧",
	"FIX_FAILED":       "🔧",
	"FIX_REMOVED":      "🧹",
	"DLC_INSTALLED":    "🧩",
	"DLC_REMOVED":      "🧩",
	"GAMES_BACKUP":     "💾",
	"GAMES_REMOVED":    "🗑️",
	"DLL_REPAIRED":     "🛠️",
	"STEAM_STARTED":    "🟢",
	"STEAM_STOPPED":    "⚫",
}

const logFileName = "gameloader.log"

// NotifyFunc receives the notification built by Event. It must not block.
type NotifyFunc func(ctx context.Context, n model.Notification)

// Config holds logger configuration options.
type Config struct {
	Level     slog.Level
	FileLevel slog.Level
	Colored   bool
	LogDir    string
	Component string
	NotifyFn  NotifyFunc
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		FileLevel: slog.LevelDebug,
		Colored:   true,
	}
}

// Logger wraps slog.Logger with a component prefix and notification dispatch.
// Loggers derived with WithComponent share the notify hook and the log file
// of their root, so SetNotifyFunc reaches every one of them.
type Logger struct {
	*slog.Logger
	cfg    Config
	notify *atomic.Pointer[NotifyFunc]
	file   *os.File
}

// Setup creates a new Logger based on the provided configuration.
// It writes to the console and, when LogDir is set, to gameloader.log.
func Setup(cfg Config) (*Logger, error) {
	l := &Logger{cfg: cfg, notify: new(atomic.Pointer[NotifyFunc])}

	var handler slog.Handler = &consoleHandler{out: &lockedWriter{w: os.Stdout}, level: cfg.Level, colored: cfg.Colored, component: cfg.Component}
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory %s: %w", cfg.LogDir, err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.LogDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		l.file = f
		handler = fanout{handler, slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.FileLevel})}
	}
	l.Logger = slog.New(handler)

	if cfg.NotifyFn != nil {
		l.SetNotifyFunc(cfg.NotifyFn)
	}
	return l, nil
}

// WithComponent returns a Logger whose console lines are prefixed with [name].
func (l *Logger) WithComponent(name string) *Logger {
	cfg := l.cfg
	cfg.Component = name
	return &Logger{
		Logger: slog.New(withPrefix(l.Logger.Handler(), name)),
		cfg:    cfg,
		notify: l.notify,
	}
}

// Nop returns a Logger that discards everything. Used by tests and optional dependencies.
func Nop() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		notify: new(atomic.Pointer[NotifyFunc]),
	}
}

// Event logs msg at INFO level, prefixed with the emoji of the event, and
// hands a notification to the notify hook if one is set.
func (l *Logger) Event(ctx context.Context, event model.Event, msg string, args ...any) {
	line := msg
	if emoji, ok := eventEmoji[string(event)]; ok {
		line = emoji + " " + msg
	}
	l.Logger.Info(line, append(args, "event", string(event))...)

	if l.notify == nil {
		return
	}
	if fn := l.notify.Load(); fn != nil {
		n := model.NewNotification(event, msg, args...)
		if l.cfg.Component != "" {
			n.Fields = append(n.Fields, model.Field{Key: "component", Value: l.cfg.Component})
		}
		(*fn)(ctx, n)
	}
}

// SetNotifyFunc sets the notification hook of l and every logger sharing its
// root. A nil fn disables notifications.
func (l *Logger) SetNotifyFunc(fn NotifyFunc) {
	if l.notify == nil {
		return
	}
	if fn == nil {
		l.notify.Store(nil)
		return
	}
	l.notify.Store(&fn)
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel converts a string log level to slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
