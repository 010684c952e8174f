// Package telemetry fans domain events out to Prometheus, InfluxDB and the
// MQTT trigger announcement topic.
//
// Recorder implements the observer interfaces of the discovery, automation
// and pairing packages, so those packages never import a metrics library.
package telemetry

import (
	"time"

	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/gatt"
	"github.com/nerrad567/puck-central/internal/infrastructure/influxdb"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
	"github.com/nerrad567/puck-central/internal/pairing"
)

// Logger defines the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// MetricsSink receives counters and gauges. Implemented by *metrics.Metrics.
type MetricsSink interface {
	ObserveSession(outcome string, d time.Duration)
	SetActiveSessions(n int)
	ObserveDispatch(trigger string, resolved bool)
	ObserveAction(actuator string, err error)
	ObserveBeacon(transition string, known bool)
}

// SampleWriter stores time-series samples. Implemented by *influxdb.Client.
type SampleWriter interface {
	WriteSession(s influxdb.SessionSample)
	WriteDispatch(s influxdb.DispatchSample)
	WriteBeacon(s influxdb.BeaconSample)
}

// Publisher announces fired triggers. Implemented by *mqtt.Client.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// TriggerFiredMessage is published on {prefix}/trigger/{puck_id}/{trigger}
// for every trigger signal, matched or not.
type TriggerFiredMessage struct {
	PuckID    string    `json:"puck_id"`
	Trigger   string    `json:"trigger"`
	Rules     int       `json:"rules"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	FiredAt   time.Time `json:"fired_at"`
}

// Options wires the recorder's sinks. Every field is optional.
type Options struct {
	Metrics   MetricsSink
	Samples   SampleWriter
	Publisher Publisher
	Topics    mqtt.Topics
	Logger    Logger
}

// Recorder translates domain observations into telemetry.
//
// Thread Safety: observer callbacks arrive from many goroutines; the
// recorder holds no mutable state of its own.
type Recorder struct {
	metrics   MetricsSink
	samples   SampleWriter
	publisher Publisher
	topics    mqtt.Topics
	logger    Logger
}

// NewRecorder creates a recorder.
func NewRecorder(opts Options) *Recorder {
	r := &Recorder{
		metrics:   opts.Metrics,
		samples:   opts.Samples,
		publisher: opts.Publisher,
		topics:    opts.Topics,
		logger:    opts.Logger,
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	return r
}

// SessionStarted implements discovery.Observer.
func (r *Recorder) SessionStarted(_ string, active int) {
	if r.metrics != nil {
		r.metrics.SetActiveSessions(active)
	}
}

// SessionFinished implements discovery.Observer.
func (r *Recorder) SessionFinished(res gatt.Result, active int) {
	if r.metrics != nil {
		r.metrics.SetActiveSessions(active)
		r.metrics.ObserveSession(res.State.String(), res.Duration())
	}
	if r.samples != nil {
		r.samples.WriteSession(influxdb.SessionSample{
			Address:  res.Address,
			Outcome:  res.State.String(),
			Status:   res.Status(),
			Services: len(res.Services),
			Duration: res.Duration(),
			At:       res.EndedAt,
		})
	}
}

// ActionExecuted implements automation.Observer.
func (r *Recorder) ActionExecuted(_ automation.Firing, o automation.Outcome) {
	if r.metrics != nil {
		r.metrics.ObserveAction(string(o.Actuator), o.Err)
	}
}

// Dispatched implements automation.Observer. It only sees dispatches that
// ran at least one rule.
func (r *Recorder) Dispatched(res *automation.DispatchResult) {
	if r.samples == nil {
		return
	}
	succeeded := res.Succeeded()
	r.samples.WriteDispatch(influxdb.DispatchSample{
		PuckID:    res.PuckID,
		Trigger:   string(res.Trigger),
		Rules:     res.Rules,
		Succeeded: succeeded,
		Failed:    len(res.Outcomes) - succeeded,
		Duration:  res.Duration,
		At:        res.StartedAt,
	})
}

// Signalled implements automation.Observer. It counts every trigger signal
// and announces it, whether or not a rule was bound.
func (r *Recorder) Signalled(res *automation.DispatchResult) {
	trigger := string(res.Trigger)
	if r.metrics != nil {
		r.metrics.ObserveDispatch(trigger, res.Resolved())
	}
	if r.publisher == nil {
		return
	}
	succeeded := res.Succeeded()
	msg := TriggerFiredMessage{
		PuckID:    res.PuckID,
		Trigger:   trigger,
		Rules:     res.Rules,
		Succeeded: succeeded,
		Failed:    len(res.Outcomes) - succeeded,
		FiredAt:   res.StartedAt,
	}
	if err := r.publisher.PublishJSON(r.topics.TriggerFired(res.PuckID, trigger), msg, false); err != nil {
		r.logger.Warn("trigger announcement failed", "puck_id", res.PuckID, "trigger", trigger, "error", err)
	}
}

// SightingHandled implements pairing.Observer.
func (r *Recorder) SightingHandled(s pairing.Sighting, outcome pairing.Outcome) {
	known := outcome == pairing.OutcomeAlreadyPaired || outcome == pairing.OutcomeExited
	if r.metrics != nil {
		r.metrics.ObserveBeacon(string(s.Transition), known)
	}
	if r.samples != nil {
		r.samples.WriteBeacon(influxdb.BeaconSample{
			Address:    s.Address,
			Transition: string(s.Transition),
			Known:      known,
			At:         s.SeenAt,
		})
	}
}
