// Package monitoring carries the daemon-wide diagnostic logger used by the
// capture, storage, and notification components.
package monitoring

import "log"

// Logf is the package-level logger. It defaults to log.Printf; the daemon or
// tests may redirect or mute it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
