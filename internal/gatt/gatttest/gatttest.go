// Package gatttest provides a scriptable in-memory gatt.Transport for tests.
package gatttest

import (
	"context"
	"slices"
	"sync"

	"github.com/nerrad567/puck-central/internal/gatt"
	"github.com/nerrad567/puck-central/internal/puck"
)

const eventBuffer = 16

// Behavior scripts how a device answers.
type Behavior struct {
	// Services is what DiscoverServices reports.
	Services []puck.ServiceID

	// FailStatus, when non-zero, answers Connect with ConnectionFailed.
	FailStatus int

	// Stall leaves the link silent after Connect.
	Stall bool

	// Hold, when non-nil, delays ConnectionEstablished until it is closed.
	Hold chan struct{}

	// ConnectErr is returned from Connect itself.
	ConnectErr error
}

// Transport is a fake gatt.Transport. The zero value is not usable; call NewTransport.
type Transport struct {
	mu        sync.Mutex
	fallback  Behavior
	behaviors map[string]Behavior
	links     map[string][]*Link
	connected chan string
}

// NewTransport returns a transport where every device answers with fallback.
func NewTransport(fallback Behavior) *Transport {
	return &Transport{
		fallback:  fallback,
		behaviors: make(map[string]Behavior),
		links:     make(map[string][]*Link),
		connected: make(chan string, 64),
	}
}

// Script overrides the behaviour for one address.
func (t *Transport) Script(address string, b Behavior) {
	t.mu.Lock()
	t.behaviors[address] = b
	t.mu.Unlock()
}

// Connect implements gatt.Transport.
func (t *Transport) Connect(ctx context.Context, address string) (gatt.Link, error) {
	t.mu.Lock()
	b, ok := t.behaviors[address]
	if !ok {
		b = t.fallback
	}
	if b.ConnectErr != nil {
		t.mu.Unlock()
		return nil, b.ConnectErr
	}
	l := &Link{
		Address:  address,
		behavior: b,
		events:   make(chan gatt.Event, eventBuffer),
	}
	t.links[address] = append(t.links[address], l)
	t.mu.Unlock()

	select {
	case t.connected <- address:
	default:
	}

	switch {
	case b.FailStatus != 0:
		l.Emit(gatt.ConnectionFailed{Status: b.FailStatus})
	case b.Stall:
	case b.Hold != nil:
		go func() {
			select {
			case <-b.Hold:
				l.Emit(gatt.ConnectionEstablished{})
			case <-ctx.Done():
			}
		}()
	default:
		l.Emit(gatt.ConnectionEstablished{})
	}
	return l, nil
}

// Connected delivers the address of every Connect call (best effort, buffered).
func (t *Transport) Connected() <-chan string {
	return t.connected
}

// Connects returns how many links were opened to address.
func (t *Transport) Connects(address string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.links[address])
}

// Links returns the links opened to address, oldest first.
func (t *Transport) Links(address string) []*Link {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.links[address])
}

// Link is a fake gatt.Link that answers according to its Behavior.
type Link struct {
	Address  string
	behavior Behavior
	events   chan gatt.Event

	mu          sync.Mutex
	discovers   int
	disconnects int
	closes      int
}

// Events implements gatt.Link.
func (l *Link) Events() <-chan gatt.Event {
	return l.events
}

// Emit queues an event as if the radio had reported it.
func (l *Link) Emit(ev gatt.Event) {
	l.events <- ev
}

// DiscoverServices answers with the scripted services.
func (l *Link) DiscoverServices() error {
	l.mu.Lock()
	l.discovers++
	l.mu.Unlock()
	l.Emit(gatt.ServicesDiscovered{Services: slices.Clone(l.behavior.Services)})
	return nil
}

// Disconnect answers with Disconnected.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	l.disconnects++
	l.mu.Unlock()
	l.Emit(gatt.Disconnected{})
	return nil
}

// Close counts the release.
func (l *Link) Close() error {
	l.mu.Lock()
	l.closes++
	l.mu.Unlock()
	return nil
}

// Calls returns how often each Link method was invoked.
func (l *Link) Calls() (discovers, disconnects, closes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.discovers, l.disconnects, l.closes
}

// Store is an in-memory gatt.CapabilityStore.
type Store struct {
	mu       sync.Mutex
	services map[string][]puck.ServiceID
	Err      error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{services: make(map[string][]puck.ServiceID)}
}

// UpsertCapabilities implements gatt.CapabilityStore with union semantics.
func (s *Store) UpsertCapabilities(_ context.Context, address string, services []puck.ServiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, id := range services {
		if !slices.Contains(s.services[address], id) {
			s.services[address] = append(s.services[address], id)
		}
	}
	return nil
}

// Services returns what has been stored for address.
func (s *Store) Services(address string) []puck.ServiceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.services[address])
}
