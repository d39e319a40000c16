package mqtt

import "errors"

var (
	// ErrConnectionFailed is returned by Connect when the broker cannot be
	// reached within the connect timeout.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned while the broker connection is down.
	// Status publishes made in that window are dropped, not queued.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrTimeout is wrapped alongside the operation error when the broker
	// does not acknowledge in time.
	ErrTimeout = errors.New("mqtt: broker did not acknowledge in time")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
