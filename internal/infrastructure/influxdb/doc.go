// Package influxdb records lanwake history in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management, a non-blocking
// batched write API and health checks. Two measurements are written:
//
//	device_reachability  tags: device_id          fields: online, status, previous
//	wake_requests        tags: device_id, result  fields: destinations, error
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
//
//	client.WriteStatusChange(id, "online", "offline", time.Now())
//
// Rejected batches surface asynchronously through SetOnError, wrapped in
// ErrWriteFailed. Connection and health check errors are returned directly.
package influxdb
