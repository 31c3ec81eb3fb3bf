// Package logging provides structured logging for the media bridge.
//
// It wraps Go's standard log/slog package so every component logs with
// the same handler, level filter and default fields (service, version).
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
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("scheduler").Info("device scheduled", "device_id", id)
//
// Never log secrets, tokens or passwords.
package logging
