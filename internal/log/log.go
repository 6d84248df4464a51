// Package log provides structured logging for watchdesk.
// Entries carry a level, a category and key=value fields. Logging is off
// until one of the Init functions runs (--debug for the console, always for
// watch), and every entry is also published on a broker so the console can
// surface it.
package log

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/watchdesk/watchdesk/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatPoll    Category = "poll"    // Poll loop cycles and snapshot commits
	CatPush    Category = "push"    // Push channel connect/reconnect/messages
	CatAlert   Category = "alert"   // Alert sequencing and playback
	CatAPI     Category = "api"     // REST round trips
	CatAuth    Category = "auth"    // Credential loading and identity
	CatCall    Category = "call"    // Call lifecycle transitions
	CatUnit    Category = "unit"    // Unit status transitions
	CatConfig  Category = "config"  // Configuration loading/saving
	CatUI      Category = "ui"      // UI component updates
	CatCache   Category = "cache"   // cache operations
	CatJournal Category = "journal" // Local alert/assignment journal
)

// Logger writes entries to one destination and republishes them.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string]
}

var defaultLogger *Logger

func install(w io.Writer, minLevel Level) {
	defaultLogger = &Logger{
		out:      w,
		enabled:  true,
		minLevel: minLevel,
		broker:   pubsub.NewBroker[string](),
	}
}

// InitWithTeaLog opens path through tea.LogToFile so Bubble Tea's own
// diagnostics share the file with ours.
func InitWithTeaLog(path string, prefix string) (func(), error) {
	f, err := tea.LogToFile(path, prefix)
	if err != nil {
		return nil, err
	}
	install(f, LevelDebug)
	return func() { _ = f.Close() }, nil
}

// InitWriter sends entries at or above minLevel to w.
func InitWriter(w io.Writer, minLevel Level) {
	install(w, minLevel)
}

// SetEnabled pauses or resumes logging.
func SetEnabled(enabled bool) {
	if l := defaultLogger; l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel drops entries below level from now on.
func SetMinLevel(level Level) {
	if l := defaultLogger; l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

func Debug(cat Category, msg string, fields ...any) { emit(LevelDebug, cat, msg, fields) }
func Info(cat Category, msg string, fields ...any)  { emit(LevelInfo, cat, msg, fields) }
func Warn(cat Category, msg string, fields ...any)  { emit(LevelWarn, cat, msg, fields) }
func Error(cat Category, msg string, fields ...any) { emit(LevelError, cat, msg, fields) }

// ErrorErr logs err under the "error" key, "<nil>" if there is none.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	text := "<nil>"
	if err != nil {
		text = err.Error()
	}
	emit(LevelError, cat, msg, append(fields, "error", text))
}

// WarnErr logs a recovered failure. A nil err adds no field.
func WarnErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	emit(LevelWarn, cat, msg, fields)
}

func emit(level Level, cat Category, msg string, fields []any) {
	l := defaultLogger
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || level < l.minLevel {
		return
	}

	entry := format(time.Now(), level, cat, msg, fields)
	if l.out != nil {
		_, _ = io.WriteString(l.out, entry)
	}
	if l.broker != nil {
		l.broker.Publish(pubsub.CreatedEvent, entry)
	}
}

// format renders one line:
//
//	2026-10-17T10:45:00 [WARN] [push] message key=value key2=value2
func format(at time.Time, level Level, cat Category, msg string, fields []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s", at.Format("2006-01-02T15:04:05"), level, cat, msg)
	for i := 0; i < len(fields); i += 2 {
		if i+1 == len(fields) {
			fmt.Fprintf(&b, " %v=<missing>", fields[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	b.WriteByte('\n')
	return b.String()
}

// LogEvent is a pubsub event containing a log entry.
type LogEvent = pubsub.Event[string]

// LogListener wraps a continuous listener for log events.
type LogListener = pubsub.ContinuousListener[string]

// NewListener creates a new log event listener.
// The listener is automatically cleaned up when the context is cancelled.
func NewListener(ctx context.Context) *LogListener {
	if defaultLogger == nil || defaultLogger.broker == nil {
		return nil
	}
	return pubsub.NewContinuousListener(ctx, defaultLogger.broker)
}
