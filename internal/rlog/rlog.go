// Package rlog configures the structured logger shared by every Reef
// binary and internal package: one logrus.Logger, a level and formatter
// chosen at startup, and job-scoped entries so a single job's log lines are
// attributable across a worker's lifetime. Grounded on the teacher pack's
// grafana-k6 cmd/logger.go, which selects a logrus.Formatter at startup the
// same way.
package rlog

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing to stderr at the given level ("debug",
// "info", "warn", "error", ...). jsonFormat selects the machine-readable
// formatter used when a worker's stderr is scraped by the manager; the text
// formatter is for interactive use.
func New(level string, jsonFormat bool) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("rlog: %w", err)
	}
	l.SetLevel(lvl)
	if jsonFormat {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

// WithJob returns an Entry carrying job_id, so every log line a scheduler or
// host import emits for one job can be correlated (spec §6 StateSync/Result
// messages are keyed by job ID).
func WithJob(l *logrus.Logger, jobID string) *logrus.Entry {
	return l.WithField("job_id", jobID)
}
