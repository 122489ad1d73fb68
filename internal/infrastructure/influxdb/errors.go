package influxdb

import "errors"

// Telemetry errors. Write errors arrive asynchronously through the
// SetOnError callback, wrapped in ErrWriteFailed.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: server unreachable")
	ErrWriteFailed      = errors.New("influxdb: point write failed")

	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: telemetry disabled")
)
