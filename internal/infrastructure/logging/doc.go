// Package logging provides structured logging for lanwake.
//
// It wraps log/slog so every component logs through the same handler with
// the same default fields (service, version).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	registry.SetLogger(logger.Component("registry"))
//	logger.Info("monitor started", "devices", n)
//
// *Logger satisfies the small Logger interfaces declared by the device,
// wol, reachability, monitor and waker packages.
//
// Never log secrets. MQTT passwords, InfluxDB tokens and JWT secrets stay out
// of log fields.
package logging
