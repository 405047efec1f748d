// Package logging provides structured logging for oink.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used across the library, the bridge server and the CLI.
//
// # Silent by Default
//
// The protocol, device and discovery packages are libraries. Until
// Initialize is called with a level (or OINK_LOG_LEVEL is set), every call
// goes to a nop logger and nothing is written. Library packages only log at
// debug level; the bridge server logs connection and request events at info.
//
// # Log Levels
//
//   - Debug: raw packet bytes, decoded packets, swallowed decode errors
//   - Info: receiver connections, HTTP requests, websocket clients
//   - Warn: dropped events, shutdown timeouts
//   - Error: listener failures, startup errors
//
// # Structured Logging
//
//	logging.Info("Receiver connected",
//	    zap.String("remote_addr", "192.168.1.20:60128"),
//	    zap.String("device_type", "1"),
//	)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr in console format so that stdout stays usable for
// command output such as `oink discover --json`.
package logging
