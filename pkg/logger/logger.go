// Package logger wraps logrus with the studio backend's conventions: a
// component field on every entry of a NewDefault logger and
// config-selectable level/format.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps *logrus.Logger so call sites depend on this package, not on
// logrus directly.
type Logger struct {
	*logrus.Logger
}

// Config selects level, format, and output destination.
type Config struct {
	Level  string // debug | info | warn | error
	Format string // text | json
	Output string // stdout | file
	// Dir is the log directory when Output is "file".
	Dir string
	// Name names the log file when Output is "file". New adds no component
	// field.
	Name string
}

// New builds a logger from cfg, falling back to info/text/stdout for any
// field it cannot parse.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if strings.EqualFold(cfg.Output, "file") {
		dir := cfg.Dir
		if dir == "" {
			dir = "logs"
		}
		name := cfg.Name
		if name == "" {
			name = "rlstudio"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			l.WithError(err).Error("create log directory")
		} else {
			path := filepath.Join(dir, name+".log")
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				l.WithError(err).Error("open log file")
			} else {
				l.SetOutput(io.MultiWriter(os.Stdout, file))
			}
		}
	} else {
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l}
}

// NewDefault builds an info-level text logger to stdout. The component name
// is attached to every entry so interleaved service output stays readable.
func NewDefault(component string) *Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stdout)
	if component != "" {
		l.AddHook(&componentHook{component: component})
	}
	return &Logger{Logger: l}
}

// componentHook stamps the component field onto every entry.
type componentHook struct {
	component string
}

func (h *componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *componentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["component"]; !ok {
		entry.Data["component"] = h.component
	}
	return nil
}
