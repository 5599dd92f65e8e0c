// Package logger provides leveled logging for the adapter.
//
// Output format and destination are process-wide and configured once at
// startup from the logging config section. Text output is human-oriented;
// json output emits one object per line for log shippers.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	format       = FormatText
	out          io.Writer = os.Stdout
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

// SetLevel sets the minimum level that is emitted. Unknown values are ignored.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetFormat selects the output format, "text" or "json". Unknown values are
// ignored.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(f) {
	case FormatText, FormatJSON:
		format = strings.ToLower(f)
	}
}

// SetOutput directs log output to "stdout", "stderr", or a file path.
// The file is opened in append mode and created if missing.
func SetOutput(dest string) error {
	var w io.Writer
	switch dest {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log output %q: %w", dest, err)
		}
		w = f
	}

	mu.Lock()
	out = w
	mu.Unlock()
	return nil
}

func emit(level Level, msgFormat string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(msgFormat, v...)

	switch format {
	case FormatJSON:
		entry := struct {
			Time    string `json:"time"`
			Level   string `json:"level"`
			Message string `json:"message"`
		}{
			Time:    now.Format(time.RFC3339),
			Level:   level.String(),
			Message: message,
		}
		line, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(out, "[%s] [%s] %s\n", now.Format("2006-01-02 15:04:05"), level, message)
			return
		}
		fmt.Fprintf(out, "%s\n", line)
	default:
		fmt.Fprintf(out, "[%s] [%s] %s\n", now.Format("2006-01-02 15:04:05"), level, message)
	}
}

func Debug(format string, v ...any) {
	emit(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	emit(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	emit(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	emit(LevelError, format, v...)
}
