package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every lanwake topic when none is configured.
const DefaultTopicPrefix = "lanwake"

// Topics builds lanwake MQTT topics under a common prefix.
// The zero value uses DefaultTopicPrefix.
//
//	topics := mqtt.Topics{Prefix: "home/lanwake"}
//	topics.DeviceStatus("6f1c...")  // "home/lanwake/status/6f1c..."
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// DeviceStatus returns the retained reachability topic for a device.
//
// Example: lanwake/status/{device_id}
func (t Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/status/%s", t.prefix(), deviceID)
}

// WakeCommand returns the topic on which a wake request for a device is accepted.
//
// Example: lanwake/command/wake/{device_id}
func (t Topics) WakeCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/wake/%s", t.prefix(), deviceID)
}

// WakeEvent returns the topic on which wake attempts are reported.
//
// Example: lanwake/event/wake/{device_id}
func (t Topics) WakeEvent(deviceID string) string {
	return fmt.Sprintf("%s/event/wake/%s", t.prefix(), deviceID)
}

// SystemStatus returns the service's retained online/offline topic (also the LWT topic).
//
// Example: lanwake/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AllWakeCommands returns a pattern matching every device's wake command topic.
//
// Pattern: lanwake/command/wake/+
func (t Topics) AllWakeCommands() string {
	return t.WakeCommand("+")
}

// AllDeviceStatuses returns a pattern matching every device status topic.
//
// Pattern: lanwake/status/+
func (t Topics) AllDeviceStatuses() string {
	return t.DeviceStatus("+")
}

// WakeCommandDevice extracts the device ID from a wake command topic.
// It reports false when topic is not a wake command under this prefix.
func (t Topics) WakeCommandDevice(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, t.prefix()+"/command/wake/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
