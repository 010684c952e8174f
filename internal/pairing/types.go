package pairing

import (
	"time"

	"github.com/nerrad567/puck-central/internal/puck"
)

// Transition is the direction of a beacon sighting.
type Transition string

const (
	TransitionEntered Transition = "entered"
	TransitionExited  Transition = "exited"
)

// Sighting is one beacon transition reported by the BLE bridge.
type Sighting struct {
	Transition Transition
	Beacon     puck.BeaconIdentity
	Address    string
	RSSI       int
	SeenAt     time.Time
}

// Outcome is the typed result of handling a sighting. The API layer turns
// it into a user-facing message.
type Outcome int

const (
	// OutcomeCandidate means an unknown beacon is held for acceptance.
	OutcomeCandidate Outcome = iota + 1

	// OutcomePaired means an unknown beacon was paired automatically.
	OutcomePaired

	// OutcomeAlreadyPaired means the beacon belongs to a known puck and
	// enter-zone fired.
	OutcomeAlreadyPaired

	// OutcomeExited means a known puck left range and exit-zone fired.
	OutcomeExited

	// OutcomeIgnored means an unknown beacon left range.
	OutcomeIgnored
)

var outcomeNames = map[Outcome]string{
	OutcomeCandidate:     "candidate",
	OutcomePaired:        "paired",
	OutcomeAlreadyPaired: "already_paired",
	OutcomeExited:        "exited",
	OutcomeIgnored:       "ignored",
}

var outcomeMessages = map[Outcome]string{
	OutcomeCandidate:     "New puck found, waiting to be accepted",
	OutcomePaired:        "New puck paired",
	OutcomeAlreadyPaired: "Puck already paired",
	OutcomeExited:        "Puck left the zone",
	OutcomeIgnored:       "Unknown beacon left range",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Message is a short human-readable description.
func (o Outcome) Message() string {
	return outcomeMessages[o]
}

// Candidate is an unknown beacon waiting to be accepted.
type Candidate struct {
	Address   string              `json:"address"`
	Beacon    puck.BeaconIdentity `json:"beacon"`
	RSSI      int                 `json:"rssi"`
	FirstSeen time.Time           `json:"first_seen"`
	LastSeen  time.Time           `json:"last_seen"`
}
