// Package logging provides structured logging for lexhost.
//
// It wraps Go's log/slog package so every component logs with the same
// shape: JSON in production, text for development, and default fields
// (service, version) on every entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("provisioning complete", "copied", 3)
//	logger.Component("bridge").Error("query failed", "error", err)
//
// Never log query text verbatim at info level or above; it may carry
// user-entered search terms.
package logging
