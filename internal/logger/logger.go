// Package logger builds the structured logger shared by the server and the
// event consumer and carries it on a context.Context.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

type ctxKey struct{}

type Config struct {
	Level      string
	JSON       bool
	Output     io.Writer
	TimeFormat string
}

func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Output:     os.Stdout,
		TimeFormat: "15:04:05",
	}
}

// New returns a charm logger configured from cfg.  A nil cfg yields the defaults.
func New(cfg *Config) *charmlog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	l := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           ParseLevel(cfg.Level),
	})
	if cfg.JSON {
		l.SetFormatter(charmlog.JSONFormatter)
	}
	return l
}

// ParseLevel maps a level name to a charm level, defaulting to info.
func ParseLevel(s string) charmlog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return charmlog.DebugLevel
	case "warn", "warning":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

func ContextWithLogger(ctx context.Context, l *charmlog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored on ctx, or the charm default logger.
func FromContext(ctx context.Context) *charmlog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*charmlog.Logger); ok && l != nil {
			return l
		}
	}
	return charmlog.Default()
}
