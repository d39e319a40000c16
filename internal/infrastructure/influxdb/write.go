package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReachability = "device_reachability"
	MeasurementWake         = "wake_requests"
)

// WriteStatusChange records a device's transition to status.
func (c *Client) WriteStatusChange(deviceID, status, previous string, at time.Time) {
	c.record(reachabilityPoint(deviceID, status, previous, at))
}

// WriteWake records a wake attempt. sendErr is nil when at least one
// destination accepted the packet.
func (c *Client) WriteWake(deviceID string, destinations int, sendErr error, at time.Time) {
	c.record(wakePoint(deviceID, destinations, sendErr, at))
}

// reachabilityPoint sets online to 1 only for the "online" status so
// dashboards can graph uptime directly; unknown and checking count as 0.
func reachabilityPoint(deviceID, status, previous string, at time.Time) *write.Point {
	online := 0
	if status == "online" {
		online = 1
	}

	p := write.NewPointWithMeasurement(MeasurementReachability).
		AddTag("device_id", deviceID).
		AddField("online", online).
		AddField("status", status).
		SetTime(at)
	if previous != "" {
		p.AddField("previous", previous)
	}
	return p
}

func wakePoint(deviceID string, destinations int, sendErr error, at time.Time) *write.Point {
	result := "sent"
	if sendErr != nil {
		result = "failed"
	}

	p := write.NewPointWithMeasurement(MeasurementWake).
		AddTag("device_id", deviceID).
		AddTag("result", result).
		AddField("destinations", destinations).
		SetTime(at)
	if sendErr != nil {
		p.AddField("error", sendErr.Error())
	}
	return p
}
