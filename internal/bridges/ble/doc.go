// Package ble connects Puck Central to the BLE bridge over MQTT.
//
// The bridge is a separate process that owns the Bluetooth adapter. It
// scans for iBeacon advertisements and performs GATT operations on
// request. This package is the core-side half of that contract:
//
//	┌──────────────────┐          ┌──────────────────┐
//	│   Puck Central   │   MQTT   │    BLE Bridge    │   HCI
//	│  (this package)  │◄────────►│  (subprocess)    │◄───────► pucks
//	└──────────────────┘          └──────────────────┘
//
// # Components
//
//   - Transport implements gatt.Transport. Connect publishes a command on
//     {prefix}/ble/command/{address}; the bridge answers on
//     {prefix}/ble/event/{address} and the events are fed to the link.
//   - BeaconSubscriber turns {prefix}/beacon/entered and
//     {prefix}/beacon/exited messages into pairing sightings.
//   - GestureSubscriber turns {prefix}/ble/gesture/{address} messages into
//     trigger signals for the puck paired at that address.
//   - HealthMonitor tracks the bridge's retained status on {prefix}/ble/health.
//
// # Event Translation
//
// A connection_state event with a non-zero status is always a
// gatt.ConnectionFailed, whatever state it reports. Zero status with state
// "connected" is gatt.ConnectionEstablished and with "disconnected" is
// gatt.Disconnected.
package ble
