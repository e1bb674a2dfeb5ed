// Package logging provides structured logging for the Chimp relay.
//
// This package wraps Go's standard log/slog package so every component
// logs the same way: state transitions, received messages and failures
// all go through one configured Logger.
//
// # Features
//
//   - Text output for the console (default)
//   - JSON output for log shipping
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use, including from broker callbacks
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("subscribed", "topic", "chimp/topic")
//
// Never log the device private key or the temporary cloud credentials.
package logging
