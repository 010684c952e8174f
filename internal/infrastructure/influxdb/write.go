package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by Puck Central.
const (
	MeasurementSession  = "gatt_session"
	MeasurementDispatch = "trigger_dispatch"
	MeasurementBeacon   = "beacon_transition"
)

// SessionSample describes one finished GATT discovery session.
type SessionSample struct {
	Address  string
	Outcome  string // "closed" or "error"
	Status   int    // transport status code, 0 unless the link reported one
	Services int
	Duration time.Duration
	At       time.Time
}

// DispatchSample describes one trigger fire.
type DispatchSample struct {
	PuckID    string
	Trigger   string
	Rules     int
	Succeeded int
	Failed    int
	Duration  time.Duration
	At        time.Time
}

// BeaconSample records a beacon entering or leaving range.
type BeaconSample struct {
	Address    string
	Transition string // "entered" or "exited"
	Known      bool
	At         time.Time
}

// WriteSession records a finished discovery session. Non-blocking.
func (c *Client) WriteSession(s SessionSample) {
	c.writePoint(sessionPoint(s))
}

// WriteDispatch records the outcome of firing a trigger. Non-blocking.
func (c *Client) WriteDispatch(s DispatchSample) {
	c.writePoint(dispatchPoint(s))
}

// WriteBeacon records a beacon transition. Non-blocking.
func (c *Client) WriteBeacon(s BeaconSample) {
	c.writePoint(beaconPoint(s))
}

// WritePoint writes a custom point stamped with the current time.
//
// Example:
//
//	client.WritePoint("bridge_restarts",
//	    map[string]string{"adapter": "hci0"},
//	    map[string]interface{}{"count": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func sessionPoint(s SessionSample) *write.Point {
	return write.NewPoint(
		MeasurementSession,
		map[string]string{
			"address": s.Address,
			"outcome": s.Outcome,
		},
		map[string]interface{}{
			"status":      s.Status,
			"services":    s.Services,
			"duration_ms": s.Duration.Milliseconds(),
		},
		stamp(s.At),
	)
}

func dispatchPoint(s DispatchSample) *write.Point {
	return write.NewPoint(
		MeasurementDispatch,
		map[string]string{
			"puck_id": s.PuckID,
			"trigger": s.Trigger,
		},
		map[string]interface{}{
			"rules":       s.Rules,
			"succeeded":   s.Succeeded,
			"failed":      s.Failed,
			"duration_ms": s.Duration.Milliseconds(),
		},
		stamp(s.At),
	)
}

func beaconPoint(s BeaconSample) *write.Point {
	return write.NewPoint(
		MeasurementBeacon,
		map[string]string{
			"address":    s.Address,
			"transition": s.Transition,
		},
		map[string]interface{}{
			"known": s.Known,
		},
		stamp(s.At),
	)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
