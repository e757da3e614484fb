package hdfsclient

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ConfigureLogging sets the level and output of logrus's standard logger,
// parsed the same way logrus.ParseLevel does ("debug", "info", "warn",
// "error", ...). internal/coordinator and internal/datanode both log
// through logrus.WithFields against the standard logger, so this is the
// one place that actually changes what the wire-protocol clients emit;
// callers embedding this library in a larger service that already
// configures logrus globally do not need to call this at all.
func ConfigureLogging(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(parsed)
	logrus.SetOutput(os.Stderr)
	return nil
}
