package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "puckcentral"

// Topics builds Puck Central MQTT topics under a common prefix.
//
//	topics := mqtt.NewTopics("puckcentral")
//	topics.BLECommand("C4:BE:84:0A:11:02")
//	// Returns: "puckcentral/ble/command/C4:BE:84:0A:11:02"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder rooted at prefix.
// Surrounding slashes are trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// =============================================================================
// BLE bridge topics
// =============================================================================

// BLECommand returns the topic the bridge listens on for GATT commands to a device.
//
// Example: puckcentral/ble/command/C4:BE:84:0A:11:02
func (t Topics) BLECommand(address string) string {
	return fmt.Sprintf("%s/ble/command/%s", t.Prefix(), address)
}

// BLEEvent returns the topic the bridge publishes GATT events on for a device.
//
// Example: puckcentral/ble/event/C4:BE:84:0A:11:02
func (t Topics) BLEEvent(address string) string {
	return fmt.Sprintf("%s/ble/event/%s", t.Prefix(), address)
}

// AllBLEEvents returns a wildcard subscription for every device's GATT events.
func (t Topics) AllBLEEvents() string {
	return t.Prefix() + "/ble/event/+"
}

// BLEGesture returns the topic the bridge publishes a puck's gestures on,
// such as a cube face turning up or a button press.
//
// Example: puckcentral/ble/gesture/C4:BE:84:0A:11:02
func (t Topics) BLEGesture(address string) string {
	return fmt.Sprintf("%s/ble/gesture/%s", t.Prefix(), address)
}

// AllBLEGestures returns a wildcard subscription for every device's gestures.
func (t Topics) AllBLEGestures() string {
	return t.Prefix() + "/ble/gesture/+"
}

// BridgeHealth returns the topic the bridge publishes its status on (retained).
func (t Topics) BridgeHealth() string {
	return t.Prefix() + "/ble/health"
}

// =============================================================================
// Beacon topics
// =============================================================================

// BeaconEntered returns the topic for beacons coming into range.
func (t Topics) BeaconEntered() string {
	return t.Prefix() + "/beacon/entered"
}

// BeaconExited returns the topic for beacons leaving range.
func (t Topics) BeaconExited() string {
	return t.Prefix() + "/beacon/exited"
}

// AllBeacons returns a wildcard subscription for beacon transitions.
func (t Topics) AllBeacons() string {
	return t.Prefix() + "/beacon/+"
}

// =============================================================================
// Outbound topics
// =============================================================================

// Notify returns the topic notifications for a channel are published on.
//
// Example: puckcentral/notify/phone
func (t Topics) Notify(channel string) string {
	return fmt.Sprintf("%s/notify/%s", t.Prefix(), channel)
}

// TriggerFired returns the topic a fired trigger is announced on.
//
// Example: puckcentral/trigger/9b1d.../enter-zone
func (t Topics) TriggerFired(puckID, trigger string) string {
	return fmt.Sprintf("%s/trigger/%s/%s", t.Prefix(), puckID, trigger)
}

// SystemStatus returns the retained online/offline status topic.
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// =============================================================================
// Helpers
// =============================================================================

// LastSegment returns the final level of a topic, e.g. the device address of
// a BLEEvent topic.
func LastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// ValidatePublishTopic rejects empty topics and topics containing wildcards.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}
