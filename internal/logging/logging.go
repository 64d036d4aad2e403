// Package logging sets up slog for the simulator: a text handler, the
// OTel bridge, session context and a zerolog adapter for the dispatcher.
package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath names the log file of one run, e.g. "freight.20260212_213836.log".
func LogFilePath(logsDir, consistName string, runStart time.Time) string {
	if consistName == "" {
		consistName = ServiceName
	}
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", consistName, runStart.UTC().Format("20060102_150405")),
	)
}
