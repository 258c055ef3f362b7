// Package rlog configures the structured logger the orchestrator and
// CLI share, in the teacher's idiom of a small logging façade around a
// well-known library rather than bare fmt.
package rlog

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// New returns a *logrus.Entry tagged with a fresh run id, used to
// correlate every log line emitted during one invocation (SPEC_FULL.md
// ambient-stack "Logging" section).
func New(verbose bool) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l.WithField("run_id", uuid.NewString())
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("run_id", "test")
}
