package logging

import (
	"bytes"
	"io"
	"log"
	"os"
	"strings"
)

// Level orders the bracketed tags used in log lines ("[DEBUG] ...").
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a log_level setting to a Level; unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var tags = []struct {
	tag   []byte
	level Level
}{
	{[]byte("[DEBUG]"), LevelDebug},
	{[]byte("[INFO]"), LevelInfo},
	{[]byte("[WARN]"), LevelWarn},
	{[]byte("[ERROR]"), LevelError},
}

// LevelFilter drops log lines whose level tag is below Min. Lines without a
// tag always pass.
type LevelFilter struct {
	W   io.Writer
	Min Level
}

func (f LevelFilter) Write(p []byte) (int, error) {
	for _, t := range tags {
		if bytes.Contains(p, t.tag) {
			if t.level < f.Min {
				return len(p), nil
			}
			break
		}
	}
	return f.W.Write(p)
}

// Setup points the standard logger at stdout, mirrored into a rotating file
// when target is set, filtered by level. The returned closer releases the
// file.
func Setup(target, level, prefix string, maxBytes int64) (io.Closer, error) {
	out := io.Writer(os.Stdout)
	var closer io.Closer = discard{}
	if strings.TrimSpace(target) != "" {
		rf, err := OpenRotating(target, maxBytes)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stdout, rf)
		closer = rf
	}
	log.SetOutput(LevelFilter{W: out, Min: ParseLevel(level)})
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetPrefix(prefix)
	return closer, nil
}

// DebugLogger returns a logger for hot-path debug lines, or nil unless the
// level is debug.
func DebugLogger(level, prefix string) *log.Logger {
	if ParseLevel(level) != LevelDebug {
		return nil
	}
	return log.New(log.Writer(), prefix, log.LstdFlags|log.Lmicroseconds)
}
