package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/capability"
	"github.com/nerrad567/puck-central/internal/discovery"
	"github.com/nerrad567/puck-central/internal/gatt"
	"github.com/nerrad567/puck-central/internal/infrastructure/influxdb"
	"github.com/nerrad567/puck-central/internal/infrastructure/metrics"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
	"github.com/nerrad567/puck-central/internal/pairing"
	"github.com/nerrad567/puck-central/internal/puck"
)

// Compile-time checks that the recorder satisfies every observer.
var (
	_ discovery.Observer  = (*Recorder)(nil)
	_ automation.Observer = (*Recorder)(nil)
	_ pairing.Observer    = (*Recorder)(nil)
	_ MetricsSink         = (*metrics.Metrics)(nil)
	_ SampleWriter        = (*influxdb.Client)(nil)
	_ Publisher           = (*mqtt.Client)(nil)
)

type recordingWriter struct {
	sessions   []influxdb.SessionSample
	dispatches []influxdb.DispatchSample
	beacons    []influxdb.BeaconSample
}

func (w *recordingWriter) WriteSession(s influxdb.SessionSample)   { w.sessions = append(w.sessions, s) }
func (w *recordingWriter) WriteDispatch(s influxdb.DispatchSample) { w.dispatches = append(w.dispatches, s) }
func (w *recordingWriter) WriteBeacon(s influxdb.BeaconSample)     { w.beacons = append(w.beacons, s) }

type published struct {
	topic string
	msg   any
}

type recordingPublisher struct {
	sent []published
	err  error
}

func (p *recordingPublisher) PublishJSON(topic string, v any, _ bool) error {
	p.sent = append(p.sent, published{topic, v})
	return p.err
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func dispatchResult() *automation.DispatchResult {
	started := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	return &automation.DispatchResult{
		PuckID:  "p1",
		Trigger: capability.CubeUp,
		Rules:   1,
		Outcomes: []automation.Outcome{
			{RuleID: "r1", ActionID: "a1", Actuator: "notify"},
			{RuleID: "r1", ActionID: "a2", Actuator: "webhook", Err: errors.New("boom")},
		},
		StartedAt: started,
		Duration:  20 * time.Millisecond,
	}
}

func TestRecorder_Sessions(t *testing.T) {
	m := metrics.New()
	w := &recordingWriter{}
	r := NewRecorder(Options{Metrics: m, Samples: w})

	start := time.Now()
	r.SessionStarted("C4:BE:84:0A:11:02", 1)
	r.SessionFinished(gatt.Result{
		Address:   "C4:BE:84:0A:11:02",
		State:     gatt.StateError,
		Err:       &gatt.TransportError{Status: 133},
		StartedAt: start,
		EndedAt:   start.Add(2 * time.Second),
	}, 0)

	body := scrape(t, m)
	for _, want := range []string{
		`puckcentral_gatt_sessions_total{outcome="error"} 1`,
		`puckcentral_gatt_sessions_active 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	if len(w.sessions) != 1 {
		t.Fatalf("session samples = %d", len(w.sessions))
	}
	s := w.sessions[0]
	if s.Outcome != "error" || s.Status != 133 || s.Duration != 2*time.Second {
		t.Errorf("sample = %+v", s)
	}
}

func TestRecorder_Dispatch(t *testing.T) {
	m := metrics.New()
	w := &recordingWriter{}
	pub := &recordingPublisher{}
	topics := mqtt.NewTopics("puckcentral")
	r := NewRecorder(Options{Metrics: m, Samples: w, Publisher: pub, Topics: topics})

	res := dispatchResult()
	for _, o := range res.Outcomes {
		r.ActionExecuted(automation.Firing{PuckID: res.PuckID, Trigger: res.Trigger, RuleID: o.RuleID}, o)
	}
	r.Dispatched(res)
	r.Signalled(res)
	r.Signalled(&automation.DispatchResult{PuckID: "p2", Trigger: capability.ExitZone})

	body := scrape(t, m)
	for _, want := range []string{
		`puckcentral_actions_executed_total{actuator="notify",result="success"} 1`,
		`puckcentral_actions_executed_total{actuator="webhook",result="failure"} 1`,
		`puckcentral_trigger_dispatches_total{resolved="true",trigger="cube-up"} 1`,
		`puckcentral_trigger_dispatches_total{resolved="false",trigger="exit-zone"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	if len(w.dispatches) != 1 || w.dispatches[0].Succeeded != 1 || w.dispatches[0].Failed != 1 {
		t.Errorf("dispatch samples = %+v", w.dispatches)
	}

	if len(pub.sent) != 2 {
		t.Fatalf("published %d announcements, want 2", len(pub.sent))
	}
	if pub.sent[0].topic != "puckcentral/trigger/p1/cube-up" {
		t.Errorf("topic = %s", pub.sent[0].topic)
	}
	msg := pub.sent[0].msg.(TriggerFiredMessage)
	if msg.Rules != 1 || msg.Succeeded != 1 || msg.Failed != 1 {
		t.Errorf("announcement = %+v", msg)
	}
	if pub.sent[1].topic != "puckcentral/trigger/p2/exit-zone" {
		t.Errorf("unbound signal topic = %s", pub.sent[1].topic)
	}
	if unbound := pub.sent[1].msg.(TriggerFiredMessage); unbound.Rules != 0 {
		t.Errorf("unbound announcement = %+v", unbound)
	}
}

func TestRecorder_PublishFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: mqtt.ErrNotConnected}
	r := NewRecorder(Options{Publisher: pub})
	r.Signalled(dispatchResult())
	if len(pub.sent) != 1 {
		t.Error("publish should still be attempted")
	}
}

func TestRecorder_Sightings(t *testing.T) {
	m := metrics.New()
	w := &recordingWriter{}
	r := NewRecorder(Options{Metrics: m, Samples: w})

	s := pairing.Sighting{
		Transition: pairing.TransitionEntered,
		Beacon:     puck.BeaconIdentity{ProximityUUID: "e2c56db5-dffb-48d2-b060-d0f5a71096e0", Minor: 1},
		Address:    "C4:BE:84:0A:11:02",
	}
	r.SightingHandled(s, pairing.OutcomeAlreadyPaired)
	r.SightingHandled(s, pairing.OutcomeCandidate)

	body := scrape(t, m)
	for _, want := range []string{
		`puckcentral_beacon_transitions_total{known="true",transition="entered"} 1`,
		`puckcentral_beacon_transitions_total{known="false",transition="entered"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
	if len(w.beacons) != 2 || !w.beacons[0].Known || w.beacons[1].Known {
		t.Errorf("beacon samples = %+v", w.beacons)
	}
}

func TestRecorder_NoSinks(t *testing.T) {
	r := NewRecorder(Options{})
	r.SessionStarted("x", 1)
	r.SessionFinished(gatt.Result{State: gatt.StateClosed}, 0)
	r.ActionExecuted(automation.Firing{}, automation.Outcome{})
	r.Dispatched(dispatchResult())
	r.Signalled(dispatchResult())
	r.SightingHandled(pairing.Sighting{}, pairing.OutcomeIgnored)
}
