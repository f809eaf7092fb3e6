// Package enginelog configures the engine's structured logger. Early
// boot has no syslog and often no writable disk yet, so log lines go
// to stderr in logrus's text formatter with colours disabled; each
// line carries a wall-clock RFC 3339 timestamp.
package enginelog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger at the given level ("debug", "info", "warn",
// "error"); an unrecognized or empty level falls back to info.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    false,
		DisableTimestamp: false,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
