// Package logging wraps log/slog for the hOn bridge.
//
// Every entry carries service=honbridge and the build version. Format is
// JSON by default and text when logging.format is "text":
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("session").Info("logged in", "expires", exp)
//
// Component loggers satisfy the small Logger interfaces declared by the
// hon packages, the bridge and the MQTT client.
//
// Attributes named password, token, id_token or cognito_token are written
// as [REDACTED] whatever their value.
package logging
