// Package ui renders oink CLI output with Lipgloss.
//
// Components follow a "print once" pattern: a Header banner, Result boxes
// for success and failure, and tables for receivers, commands and bridges.
// The interactive screens live in package tui.
//
// Example:
//
//	p := ui.NewPrinter(os.Stdout)
//	p.PrintHeader("Receiver Discovery", "oink discover", map[string]string{
//	    "Timeout": "1000ms",
//	})
//	p.PrintDevices(devices)
//
// Logging is controlled by the OINK_LOG_LEVEL environment variable. When it
// is unset zap is silent so styled output is not interleaved with log lines.
package ui
