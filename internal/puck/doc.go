// Package puck is the device registry for BLE pucks.
//
// A puck is a beacon that has been paired with Puck Central. It is
// identified on air by its beacon identity (proximity UUID, major, minor)
// and over GATT by its MAC address. Every completed discovery session adds
// the services it found to the puck's capability set; the set only grows.
//
//	┌──────────────┐  UpsertCapabilities  ┌───────────┐   tx    ┌────────┐
//	│ gatt.Session │ ───────────────────▶ │ Registry  │ ──────▶ │ SQLite │
//	└──────────────┘                      │ (cache)   │         └────────┘
//	                                      └───────────┘
//
// The Registry serialises capability unions per process so concurrent
// sessions for different pucks cannot lose each other's updates, and the
// repository performs each union inside a single transaction.
package puck
