package logger

import (
	"os"
	"strings"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// New returns a logger writing prefixed text to stderr. When file is not
// empty, every entry at or above level is also appended to it.
func New(level, file string) *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.Level = Level(level)
	l.Formatter = &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	}

	if file != "" {
		pathMap := lfshook.PathMap{}
		for _, lvl := range logrus.AllLevels {
			if lvl <= l.Level {
				pathMap[lvl] = file
			}
		}
		l.Hooks.Add(lfshook.NewHook(pathMap, &logrus.TextFormatter{}))
	}

	return l
}

// For returns an entry tagged with the component prefix.
func For(l *logrus.Logger, component string) *logrus.Entry {
	return l.WithField("prefix", component)
}

// Level maps a level name to a logrus level, defaulting to info.
func Level(l string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}
