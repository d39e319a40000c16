// Package mqtt provides MQTT connectivity for lanwake.
//
// lanwake publishes device reachability and wake attempts to a broker so
// home-automation systems can follow them, and accepts wake commands from it:
//
//	{prefix}/status/{device_id}        retained, current status
//	{prefix}/event/wake/{device_id}    wake attempt results
//	{prefix}/command/wake/{device_id}  inbound wake requests
//	{prefix}/system/status             retained online/offline, also the LWT
//
// The client wraps paho.mqtt.golang with auto-reconnect, subscription
// restoration after reconnect, and panic recovery around handlers.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishJSON(topics.DeviceStatus(id), event, true)
//
// Tests that need a broker at 127.0.0.1:1883 carry the integration build tag.
package mqtt
