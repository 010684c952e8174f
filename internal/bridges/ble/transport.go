package ble

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/puck-central/internal/gatt"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
	"github.com/nerrad567/puck-central/internal/puck"
)

// defaultEventBuffer is the per-link event queue depth.
const defaultEventBuffer = 16

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the subset of the MQTT client used by the bridge adapters.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// TransportConfig holds transport settings.
type TransportConfig struct {
	QoS byte

	// EventBuffer is the per-link event queue depth. Default: 16.
	EventBuffer int
}

// Transport implements gatt.Transport over the bridge's MQTT topics.
//
// At most one link per address is open at a time; the discovery
// coordinator guarantees this already, so ErrLinkBusy signals a bug or a
// second coordinator.
type Transport struct {
	client MQTTClient
	topics mqtt.Topics
	cfg    TransportConfig

	mu      sync.Mutex
	links   map[string]*link
	started bool
	logger  Logger
}

// NewTransport creates a transport. Call Start before Connect.
func NewTransport(client MQTTClient, topics mqtt.Topics, cfg TransportConfig) *Transport {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	return &Transport{
		client: client,
		topics: topics,
		cfg:    cfg,
		links:  make(map[string]*link),
		logger: noopLogger{},
	}
}

// SetLogger sets the transport logger.
func (t *Transport) SetLogger(logger Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger = logger
}

// Start subscribes to bridge events for every device.
func (t *Transport) Start() error {
	if err := t.client.Subscribe(t.topics.AllBLEEvents(), t.cfg.QoS, t.handleEvent); err != nil {
		return fmt.Errorf("subscribing to ble events: %w", err)
	}
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	return nil
}

// Stop unsubscribes and closes every open link, which ends their sessions'
// event streams.
func (t *Transport) Stop() error {
	t.mu.Lock()
	t.started = false
	open := make([]*link, 0, len(t.links))
	for _, l := range t.links {
		open = append(open, l)
	}
	t.mu.Unlock()

	for _, l := range open {
		l.Close() //nolint:errcheck // Best-effort during shutdown
	}
	return t.client.Unsubscribe(t.topics.AllBLEEvents())
}

// Connect opens a link and asks the bridge to connect to address.
func (t *Transport) Connect(ctx context.Context, address string) (gatt.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addr, err := puck.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil, ErrNotStarted
	}
	if _, busy := t.links[addr]; busy {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrLinkBusy, addr)
	}
	l := &link{
		transport: t,
		address:   addr,
		events:    make(chan gatt.Event, t.cfg.EventBuffer),
	}
	t.links[addr] = l
	t.mu.Unlock()

	if err := t.command(addr, CommandConnect); err != nil {
		t.unregister(l)
		return nil, err
	}
	return l, nil
}

// OpenLinks returns the number of links not yet closed.
func (t *Transport) OpenLinks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.links)
}

// handleEvent is the MQTT handler for {prefix}/ble/event/+.
func (t *Transport) handleEvent(topic string, payload []byte) error {
	addr, err := puck.NormalizeAddress(mqtt.LastSegment(topic))
	if err != nil {
		return fmt.Errorf("%w: topic %q", ErrInvalidMessage, topic)
	}

	var msg EventMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	ev, err := msg.ToEvent()
	if err != nil {
		return err
	}

	t.mu.Lock()
	l := t.links[addr]
	logger := t.logger
	t.mu.Unlock()

	if l == nil {
		logger.Debug("ble event for address without link", "address", addr, "event", msg.Event)
		return nil
	}
	if msg.Event == EventServicesDiscovered {
		if _, invalid := puck.ParseServiceIDs(msg.Services); len(invalid) > 0 {
			logger.Warn("ble services skipped", "address", addr, "invalid", invalid)
		}
	}
	if !l.deliver(ev) {
		logger.Warn("ble event dropped", "address", addr, "event", msg.Event)
	}
	return nil
}

func (t *Transport) command(address, name string) error {
	payload, err := json.Marshal(CommandMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Address:   address,
		Command:   name,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	if err := t.client.Publish(t.topics.BLECommand(address), payload, t.cfg.QoS, false); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, name, address, err)
	}
	return nil
}

func (t *Transport) unregister(l *link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.links[l.address] == l {
		delete(t.links, l.address)
	}
}

// link is one connection attempt. Events are delivered without blocking the
// MQTT callback; a full buffer drops the event.
type link struct {
	transport *Transport
	address   string
	events    chan gatt.Event

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

func (l *link) Events() <-chan gatt.Event {
	return l.events
}

func (l *link) DiscoverServices() error {
	return l.transport.command(l.address, CommandDiscoverServices)
}

func (l *link) Disconnect() error {
	return l.transport.command(l.address, CommandDisconnect)
}

// Close releases the bridge's connection handle and ends the event stream.
func (l *link) Close() error {
	l.closeOnce.Do(func() {
		l.transport.unregister(l)
		l.closeErr = l.transport.command(l.address, CommandClose)

		l.mu.Lock()
		l.closed = true
		close(l.events)
		l.mu.Unlock()
	})
	return l.closeErr
}

func (l *link) deliver(ev gatt.Event) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	select {
	case l.events <- ev:
		return true
	default:
		return false
	}
}
