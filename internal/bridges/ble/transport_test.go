package ble

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/puck-central/internal/gatt"
	"github.com/nerrad567/puck-central/internal/gatt/gatttest"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
	"github.com/nerrad567/puck-central/internal/puck"
)

const testAddress = "C4:BE:84:0A:11:02"

// ─── Mock MQTT Client ───────────────────────────────────────────────────────

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// mockMQTTClient records traffic and lets tests inject inbound messages.
// onPublish, when set, runs after each publish outside the lock, which is
// how the fake bridge answers commands.
type mockMQTTClient struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]mqtt.MessageHandler
	unsubbed   []string
	publishErr error
	onPublish  func(topic string, payload []byte)
}

func newMockMQTTClient() *mockMQTTClient {
	return &mockMQTTClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	if m.publishErr != nil {
		m.mu.Unlock()
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{topic, payload, qos, retained})
	hook := m.onPublish
	m.mu.Unlock()
	if hook != nil {
		hook(topic, payload)
	}
	return nil
}

func (m *mockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubbed = append(m.unsubbed, topic)
	return nil
}

// deliver simulates an inbound message on topic, routed to the handler
// registered under pattern.
func (m *mockMQTTClient) deliver(t *testing.T, pattern, topic string, v any) error {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[pattern]
	m.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler subscribed for %s", pattern)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return h(topic, payload)
}

func (m *mockMQTTClient) commands(t *testing.T) []CommandMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CommandMessage
	for _, p := range m.published {
		var cmd CommandMessage
		if err := json.Unmarshal(p.Payload, &cmd); err != nil {
			t.Fatalf("bad command payload on %s: %v", p.Topic, err)
		}
		out = append(out, cmd)
	}
	return out
}

var topics = mqtt.NewTopics("puckcentral")

func startTransport(t *testing.T, client *mockMQTTClient) *Transport {
	t.Helper()
	tr := NewTransport(client, topics, TransportConfig{QoS: 1})
	if err := tr.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { tr.Stop() }) //nolint:errcheck // Test cleanup
	return tr
}

func eventMsg(event, state string, status int, services ...string) EventMessage {
	return EventMessage{Event: event, Address: testAddress, State: state, Status: status, Services: services}
}

// ─── Event Translation ──────────────────────────────────────────────────────

func TestEventMessage_ToEvent(t *testing.T) {
	tests := []struct {
		name    string
		msg     EventMessage
		want    gatt.Event
		wantErr bool
	}{
		{"connected", eventMsg(EventConnectionState, LinkConnected, 0), gatt.ConnectionEstablished{}, false},
		{"disconnected", eventMsg(EventConnectionState, LinkDisconnected, 0), gatt.Disconnected{}, false},
		{"failed while connected", eventMsg(EventConnectionState, LinkConnected, 133), gatt.ConnectionFailed{Status: 133}, false},
		{"failed while disconnected", eventMsg(EventConnectionState, LinkDisconnected, 8), gatt.ConnectionFailed{Status: 8}, false},
		{"unknown state", eventMsg(EventConnectionState, "bonding", 0), nil, true},
		{"unknown event", eventMsg("rssi", "", 0), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.msg.ToEvent()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMessage) {
					t.Errorf("error = %v, want ErrInvalidMessage", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ToEvent() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEventMessage_InvalidServicesAreSkipped(t *testing.T) {
	ev, err := eventMsg(EventServicesDiscovered, "", 0, "nope", string(puck.ButtonService), "").ToEvent()
	if err != nil {
		t.Fatalf("ToEvent() error = %v", err)
	}
	sd := ev.(gatt.ServicesDiscovered)
	if len(sd.Services) != 1 || sd.Services[0] != puck.ButtonService {
		t.Errorf("services = %v", sd.Services)
	}
}

func TestEventMessage_ServicesAreCanonical(t *testing.T) {
	ev, err := eventMsg(EventServicesDiscovered, "", 0, "6E40C001-B5A3-F393-E0A9-E50E24DCCA9E").ToEvent()
	if err != nil {
		t.Fatal(err)
	}
	sd := ev.(gatt.ServicesDiscovered)
	if len(sd.Services) != 1 || sd.Services[0] != puck.CubeService {
		t.Errorf("services = %v", sd.Services)
	}
}

// ─── Transport ──────────────────────────────────────────────────────────────

func TestTransport_ConnectRequiresStart(t *testing.T) {
	tr := NewTransport(newMockMQTTClient(), topics, TransportConfig{})
	if _, err := tr.Connect(context.Background(), testAddress); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Connect() error = %v, want ErrNotStarted", err)
	}
}

func TestTransport_ConnectPublishesCommand(t *testing.T) {
	client := newMockMQTTClient()
	tr := startTransport(t, client)

	link, err := tr.Connect(context.Background(), "c4:be:84:0a:11:02")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if _, err := tr.Connect(context.Background(), testAddress); !errors.Is(err, ErrLinkBusy) {
		t.Errorf("second Connect() error = %v, want ErrLinkBusy", err)
	}

	if err := link.DiscoverServices(); err != nil {
		t.Fatal(err)
	}
	if err := link.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if err := link.Close(); err != nil {
		t.Fatal(err)
	}
	link.Close() //nolint:errcheck // Second close is a no-op

	cmds := client.commands(t)
	want := []string{CommandConnect, CommandDiscoverServices, CommandDisconnect, CommandClose}
	if len(cmds) != len(want) {
		t.Fatalf("commands = %+v", cmds)
	}
	for i, cmd := range cmds {
		if cmd.Command != want[i] || cmd.Address != testAddress || cmd.ID == "" {
			t.Errorf("command %d = %+v, want %s", i, cmd, want[i])
		}
	}
	if got := client.published[0].Topic; got != topics.BLECommand(testAddress) {
		t.Errorf("topic = %s", got)
	}

	if _, ok := <-link.Events(); ok {
		t.Error("events channel should be closed after Close")
	}
	if tr.OpenLinks() != 0 {
		t.Error("closed link should be unregistered")
	}
}

func TestTransport_ConnectPublishFailure(t *testing.T) {
	client := newMockMQTTClient()
	tr := startTransport(t, client)
	client.publishErr = mqtt.ErrNotConnected

	_, err := tr.Connect(context.Background(), testAddress)
	if !errors.Is(err, ErrCommandFailed) || !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("Connect() error = %v", err)
	}
	if tr.OpenLinks() != 0 {
		t.Error("failed connect should not leave a link behind")
	}
}

func TestTransport_RoutesEventsByAddress(t *testing.T) {
	client := newMockMQTTClient()
	tr := startTransport(t, client)

	link, err := tr.Connect(context.Background(), testAddress)
	if err != nil {
		t.Fatal(err)
	}
	pattern := topics.AllBLEEvents()

	// Lower-case address in the topic still routes to the link.
	if err := client.deliver(t, pattern, topics.BLEEvent("c4:be:84:0a:11:02"), eventMsg(EventConnectionState, LinkConnected, 0)); err != nil {
		t.Fatal(err)
	}
	// Another device's event is ignored.
	if err := client.deliver(t, pattern, topics.BLEEvent("C4:BE:84:0A:11:09"), eventMsg(EventConnectionState, LinkConnected, 0)); err != nil {
		t.Fatal(err)
	}
	// Malformed events are rejected without reaching the link.
	if err := client.deliver(t, pattern, topics.BLEEvent(testAddress), eventMsg("bogus", "", 0)); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("bogus event error = %v", err)
	}

	select {
	case ev := <-link.Events():
		if _, ok := ev.(gatt.ConnectionEstablished); !ok {
			t.Errorf("event = %#v", ev)
		}
	default:
		t.Fatal("expected an event")
	}
	select {
	case ev := <-link.Events():
		t.Errorf("unexpected extra event %#v", ev)
	default:
	}
}

func TestTransport_MixedServiceListReachesLink(t *testing.T) {
	client := newMockMQTTClient()
	tr := startTransport(t, client)

	link, err := tr.Connect(context.Background(), testAddress)
	if err != nil {
		t.Fatal(err)
	}
	msg := eventMsg(EventServicesDiscovered, "", 0, string(puck.CubeService), "not-a-uuid")
	if err := client.deliver(t, topics.AllBLEEvents(), topics.BLEEvent(testAddress), msg); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}

	select {
	case ev := <-link.Events():
		sd, ok := ev.(gatt.ServicesDiscovered)
		if !ok || len(sd.Services) != 1 || sd.Services[0] != puck.CubeService {
			t.Errorf("event = %#v", ev)
		}
	default:
		t.Fatal("a partly invalid service list must still reach the session")
	}
}

func TestTransport_FullBufferDropsWithoutBlocking(t *testing.T) {
	client := newMockMQTTClient()
	tr := NewTransport(client, topics, TransportConfig{EventBuffer: 1})
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Connect(context.Background(), testAddress); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			client.deliver(t, topics.AllBLEEvents(), topics.BLEEvent(testAddress), eventMsg(EventConnectionState, LinkConnected, 0)) //nolint:errcheck // Only blocking matters here
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event delivery blocked on a full buffer")
	}
}

func TestTransport_StopClosesLinks(t *testing.T) {
	client := newMockMQTTClient()
	tr := NewTransport(client, topics, TransportConfig{})
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	link, err := tr.Connect(context.Background(), testAddress)
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-link.Events(); ok {
		t.Error("Stop should close open links")
	}
	if len(client.unsubbed) != 1 || client.unsubbed[0] != topics.AllBLEEvents() {
		t.Errorf("unsubscribed = %v", client.unsubbed)
	}
}

// ─── Session Over The Bridge ────────────────────────────────────────────────

// fakeBridge answers commands the way the real bridge does for a reachable
// puck advertising the given services.
func fakeBridge(t *testing.T, client *mockMQTTClient, failStatus int, services ...string) {
	client.onPublish = func(topic string, payload []byte) {
		var cmd CommandMessage
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return
		}
		events := topics.AllBLEEvents()
		reply := topics.BLEEvent(cmd.Address)
		switch cmd.Command {
		case CommandConnect:
			if failStatus != 0 {
				client.deliver(t, events, reply, eventMsg(EventConnectionState, LinkDisconnected, failStatus)) //nolint:errcheck // Test bridge
				return
			}
			client.deliver(t, events, reply, eventMsg(EventConnectionState, LinkConnected, 0)) //nolint:errcheck // Test bridge
		case CommandDiscoverServices:
			client.deliver(t, events, reply, eventMsg(EventServicesDiscovered, "", 0, services...)) //nolint:errcheck // Test bridge
		case CommandDisconnect:
			client.deliver(t, events, reply, eventMsg(EventConnectionState, LinkDisconnected, 0)) //nolint:errcheck // Test bridge
		}
	}
}

func TestSessionOverBridge_Discovers(t *testing.T) {
	client := newMockMQTTClient()
	tr := startTransport(t, client)
	fakeBridge(t, client, 0, string(puck.CubeService), string(puck.ButtonService))
	store := gatttest.NewStore()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := gatt.NewSession(testAddress, tr, store).Run(ctx)

	if res.State != gatt.StateClosed || res.Err != nil {
		t.Fatalf("Result = %+v", res)
	}
	if got := store.Services(testAddress); len(got) != 2 {
		t.Errorf("stored services = %v", got)
	}
	if tr.OpenLinks() != 0 {
		t.Error("link should be closed when the session ends")
	}
}

func TestSessionOverBridge_ConnectFailure(t *testing.T) {
	client := newMockMQTTClient()
	tr := startTransport(t, client)
	fakeBridge(t, client, 133)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := gatt.NewSession(testAddress, tr, gatttest.NewStore()).Run(ctx)

	if res.State != gatt.StateError || res.Status() != 133 {
		t.Fatalf("Result = %+v (status %d)", res, res.Status())
	}
}
