package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// testWriter maps log output onto testing.T.Log so that logging is only
// shown for failed tests.
type testWriter struct {
	t testing.TB
}

func (w *testWriter) Write(d []byte) (int, error) {
	n := len(d)
	if n > 0 && d[n-1] == '\n' {
		d = d[:n-1]
	}
	w.t.Log(string(d))
	return n, nil
}

// NewTestLogger returns a debug-level logger writing to t.
func NewTestLogger(t testing.TB) *logrus.Logger {
	l := logrus.New()
	l.Out = &testWriter{t: t}
	l.Level = logrus.DebugLevel
	return l
}
