// Package statusbridge connects lanwake's core to the outside world over
// MQTT and InfluxDB.
//
//	monitor.Subscription ──► Bridge ──► MQTT  {prefix}/status/{id} (retained)
//	                                └─► InfluxDB device_reachability
//	waker.Service ─ Observer ─► Bridge ──► MQTT  {prefix}/event/wake/{id}
//	                                   └─► InfluxDB wake_requests
//	MQTT {prefix}/command/wake/{id} ──► Bridge ──► waker.Service.Wake
//
// Both sinks are optional; a Bridge with neither still drains its
// subscription. When a device is removed its retained status is cleared and
// no further status is published for it.
package statusbridge
