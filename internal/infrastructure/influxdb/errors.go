package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when history recording is switched
	// off. Callers treat it as "run without history".
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed means the server could not be reached or reported
	// itself unhealthy when connecting.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps every batch the server rejected. These errors are
	// only seen by the SetOnError callback since writes never block.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
