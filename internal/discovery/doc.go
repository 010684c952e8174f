// Package discovery admits and runs GATT service-discovery sessions.
//
// The Coordinator keeps at most one live gatt.Session per device address.
// A request for an address that already has a session is a no-op reported as
// AdmissionDuplicate. When a session reaches Closed or Error it is removed
// from the table and observers receive its gatt.Result.
//
//	RequestDiscovery(addr)
//	        │
//	        ├── active? ──▶ AdmissionDuplicate
//	        │
//	        ▼
//	  sessions[addr] = NewSession ──▶ goroutine: Run(ctx)
//	                                        │
//	                                        ▼
//	                          delete(sessions, addr), notify observers
//
// The Refresher re-requests discovery for every registered puck on a cron
// schedule so that firmware updates adding services are picked up.
package discovery
