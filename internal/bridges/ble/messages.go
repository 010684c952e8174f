package ble

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/puck-central/internal/gatt"
	"github.com/nerrad567/puck-central/internal/puck"
)

// MQTT message types exchanged with the BLE bridge.

// Command names understood by the bridge.
const (
	CommandConnect          = "connect"
	CommandDiscoverServices = "discover_services"
	CommandDisconnect       = "disconnect"
	CommandClose            = "close"
)

// CommandMessage is sent from Core to the bridge.
// Topic: {prefix}/ble/command/{address}
type CommandMessage struct {
	// ID correlates the command in bridge logs.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address"`
	Command   string    `json:"command"`
}

// Event names published by the bridge.
const (
	EventConnectionState    = "connection_state"
	EventServicesDiscovered = "services_discovered"
)

// Connection states reported in connection_state events.
const (
	LinkConnected    = "connected"
	LinkDisconnected = "disconnected"
)

// EventMessage is sent from the bridge to Core for one device.
// Topic: {prefix}/ble/event/{address}
type EventMessage struct {
	Event   string `json:"event"`
	Address string `json:"address"`

	// Status is the raw GATT status code; 0 is success.
	Status int `json:"status"`

	// State is set on connection_state events.
	State string `json:"state,omitempty"`

	// Services is set on services_discovered events.
	Services []string `json:"services,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// ToEvent translates the message into a session event. Service entries that
// are not UUIDs are dropped; the rest of the list is still delivered.
func (m EventMessage) ToEvent() (gatt.Event, error) {
	switch m.Event {
	case EventConnectionState:
		if m.Status != 0 {
			return gatt.ConnectionFailed{Status: m.Status}, nil
		}
		switch m.State {
		case LinkConnected:
			return gatt.ConnectionEstablished{}, nil
		case LinkDisconnected:
			return gatt.Disconnected{}, nil
		default:
			return nil, fmt.Errorf("%w: connection state %q", ErrInvalidMessage, m.State)
		}
	case EventServicesDiscovered:
		services, _ := puck.ParseServiceIDs(m.Services)
		return gatt.ServicesDiscovered{Services: services}, nil
	default:
		return nil, fmt.Errorf("%w: event %q", ErrInvalidMessage, m.Event)
	}
}

// GestureMessage is a trigger raised by a connected puck, read by the
// bridge from a GATT notification.
// Topic: {prefix}/ble/gesture/{address}
type GestureMessage struct {
	Trigger   string    `json:"trigger"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// BeaconMessage is a beacon transition reported by the bridge.
// Topic: {prefix}/beacon/entered or {prefix}/beacon/exited
type BeaconMessage struct {
	Minor         uint16    `json:"minor"`
	Major         uint16    `json:"major"`
	ProximityUUID string    `json:"proximity_uuid"`
	Address       string    `json:"address"`
	RSSI          int       `json:"rssi,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthOffline is published by the broker from the bridge's LWT.
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"

	// HealthUnknown means no status has been received yet.
	HealthUnknown HealthStatus = "unknown"
)

// HealthMessage is the bridge's retained status.
// Topic: {prefix}/ble/health
type HealthMessage struct {
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	Adapter       string       `json:"adapter,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

func decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}
