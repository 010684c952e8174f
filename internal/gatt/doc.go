// Package gatt runs the connection and service-discovery state machine for
// a single BLE device.
//
// A Session connects, asks the device for its services, stores them, and
// disconnects:
//
//	Idle ──Run──▶ Connecting ──ConnectionEstablished──▶ Connected
//	                                                       │ DiscoverServices()
//	                                                       ▼
//	Closed ◀──Disconnected── Disconnecting ◀──ServicesDiscovered── DiscoveringServices
//
//	any non-terminal state ──ConnectionFailed / unexpected Disconnected──▶ Error
//
// Transport callbacks never touch session state. They deliver Event values
// on the Link's channel and the session's own goroutine applies them one at
// a time, so a session needs no locking beyond the State accessor.
//
// A status other than success in ConnectionFailed is always fatal. The raw
// status code is kept in TransportError for diagnostics.
package gatt
