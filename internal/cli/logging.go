package cli

import (
	"io"
	"log"
	"strings"
)

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func parseLogLevel(s string) logLevel {
	switch strings.ToLower(s) {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// levelWriter drops log lines tagged below the configured level. Lines
// carry their level as a [LEVEL] token; untagged lines always pass.
type levelWriter struct {
	w   io.Writer
	min logLevel
}

func (lw levelWriter) Write(p []byte) (int, error) {
	if lineLevel(string(p)) < lw.min {
		return len(p), nil
	}
	return lw.w.Write(p)
}

func lineLevel(line string) logLevel {
	switch {
	case strings.Contains(line, "[DEBUG]"):
		return levelDebug
	case strings.Contains(line, "[WARN]"):
		return levelWarn
	case strings.Contains(line, "[ERROR]"):
		return levelError
	default:
		return levelInfo
	}
}

// newLogger builds the shared logger: timestamped, filtered by the
// configured level.
func newLogger(w io.Writer, level string) *log.Logger {
	return log.New(levelWriter{w: w, min: parseLogLevel(level)}, "", log.LstdFlags)
}
