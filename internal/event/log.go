// Package event holds the logger shared by the internal packages.
package event

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. Packages bind it as `var log = event.Log`.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetLevel(logrus.InfoLevel)
	Log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
	})
}

// SetVerbose switches the shared logger between info and debug output.
func SetVerbose(verbose bool) {
	if verbose {
		Log.SetLevel(logrus.DebugLevel)
		return
	}
	Log.SetLevel(logrus.InfoLevel)
}
