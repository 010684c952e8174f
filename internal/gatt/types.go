package gatt

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/puck-central/internal/puck"
)

// State is a session's position in the connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDiscoveringServices
	StateDisconnecting
	StateClosed
	StateError
)

var stateNames = [...]string{
	StateIdle:                "idle",
	StateConnecting:          "connecting",
	StateConnected:           "connected",
	StateDiscoveringServices: "discovering_services",
	StateDisconnecting:       "disconnecting",
	StateClosed:              "closed",
	StateError:               "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateError
}

// Event is a notification from the transport. The concrete types are the
// only implementations.
type Event interface {
	isEvent()
}

// ConnectionEstablished reports a successful connection.
type ConnectionEstablished struct{}

// ConnectionFailed reports a connection state change with a non-success status.
type ConnectionFailed struct {
	Status int
}

// ServicesDiscovered carries the services found on the device.
type ServicesDiscovered struct {
	Services []puck.ServiceID
}

// Disconnected reports that the link went down cleanly.
type Disconnected struct{}

func (ConnectionEstablished) isEvent() {}
func (ConnectionFailed) isEvent()      {}
func (ServicesDiscovered) isEvent()    {}
func (Disconnected) isEvent()          {}

// Transport opens links to devices.
type Transport interface {
	// Connect requests a connection. Success only means the request was
	// accepted; the outcome arrives as an Event on the returned Link.
	Connect(ctx context.Context, address string) (Link, error)
}

// Link is one connection attempt to one device.
type Link interface {
	// Events delivers transport notifications. The transport may close it
	// after Close.
	Events() <-chan Event
	DiscoverServices() error
	Disconnect() error
	// Close releases the connection handle. Safe to call more than once.
	Close() error
}

// CapabilityStore receives the services discovered for an address.
// Implementations must union, never replace.
type CapabilityStore interface {
	UpsertCapabilities(ctx context.Context, address string, services []puck.ServiceID) error
}

// Result describes how a session ended.
type Result struct {
	Address   string
	State     State // StateClosed or StateError
	Services  []puck.ServiceID
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration is the session's wall-clock time.
func (r Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Status returns the transport status code when the session failed with a
// TransportError, and 0 otherwise.
func (r Result) Status() int {
	var te *TransportError
	if errors.As(r.Err, &te) {
		return te.Status
	}
	return 0
}
