// Package capability maps GATT services to the triggers a puck can raise.
//
// The mapping is a fixed, ordered table. ResolveTriggers is pure: the same
// services always yield the same triggers in the same order, whatever order
// the services were discovered in.
package capability

import (
	"slices"

	"github.com/nerrad567/puck-central/internal/puck"
)

// Trigger is an event name a puck can raise, e.g. "enter-zone".
type Trigger string

// Triggers raised by the known services.
const (
	EnterZone     Trigger = "enter-zone"
	ExitZone      Trigger = "exit-zone"
	CubeUp        Trigger = "cube-up"
	CubeDown      Trigger = "cube-down"
	CubeLeft      Trigger = "cube-left"
	CubeRight     Trigger = "cube-right"
	CubeFront     Trigger = "cube-front"
	CubeBack      Trigger = "cube-back"
	ButtonPressed Trigger = "button-pressed"
)

type serviceTriggers struct {
	service  puck.ServiceID
	name     string
	triggers []Trigger
}

// table order defines output order.
var table = []serviceTriggers{
	{puck.LocationService, "Location", []Trigger{EnterZone, ExitZone}},
	{puck.CubeService, "Cube", []Trigger{CubeUp, CubeDown, CubeLeft, CubeRight, CubeFront, CubeBack}},
	{puck.ButtonService, "Button", []Trigger{ButtonPressed}},
}

var descriptions = map[Trigger]string{
	EnterZone:     "Enters zone",
	ExitZone:      "Leaves zone",
	CubeUp:        "Cube turned up",
	CubeDown:      "Cube turned down",
	CubeLeft:      "Cube turned left",
	CubeRight:     "Cube turned right",
	CubeFront:     "Cube turned to front",
	CubeBack:      "Cube turned to back",
	ButtonPressed: "Button pressed",
}

// ResolveTriggers returns the triggers offered by services. Unknown services
// contribute nothing and duplicate services are harmless.
func ResolveTriggers(services []puck.ServiceID) []Trigger {
	out := []Trigger{}
	for _, row := range table {
		if slices.Contains(services, row.service) {
			out = append(out, row.triggers...)
		}
	}
	return out
}

// Offers reports whether services provide trigger.
func Offers(services []puck.ServiceID, trigger Trigger) bool {
	return slices.Contains(ResolveTriggers(services), trigger)
}

// Known reports whether trigger appears anywhere in the table.
func Known(trigger Trigger) bool {
	_, ok := descriptions[trigger]
	return ok
}

// Describe returns a human label for trigger, or the trigger itself if unknown.
func Describe(trigger Trigger) string {
	if d, ok := descriptions[trigger]; ok {
		return d
	}
	return string(trigger)
}

// ServiceName returns a label for a known service and false otherwise.
func ServiceName(id puck.ServiceID) (string, bool) {
	for _, row := range table {
		if row.service == id {
			return row.name, true
		}
	}
	return "", false
}

// All returns every trigger in table order.
func All() []Trigger {
	var out []Trigger
	for _, row := range table {
		out = append(out, row.triggers...)
	}
	return out
}
