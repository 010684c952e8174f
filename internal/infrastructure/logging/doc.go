// Package logging provides structured logging for Puck Central.
//
// It wraps log/slog so every component logs with the same handler, level
// filter and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	gattLog := logger.Component("gatt")
//	gattLog.Debug("event ignored", "address", addr, "state", state)
//
// Beacon identities and MAC addresses are fine to log. MQTT passwords,
// InfluxDB tokens and webhook headers are not.
package logging
