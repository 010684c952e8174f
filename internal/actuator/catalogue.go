package actuator

import (
	"fmt"
	"net/http"

	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/infrastructure/config"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
)

// Actuator kinds.
const (
	KindNotify  automation.ActuatorKind = "notify"
	KindWebhook automation.ActuatorKind = "webhook"
	KindPublish automation.ActuatorKind = "publish"
)

// Kinds returns every actuator kind in display order.
func Kinds() []automation.ActuatorKind {
	return []automation.ActuatorKind{KindNotify, KindWebhook, KindPublish}
}

// Logger defines the logging interface used by actuators.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Publisher sends MQTT messages. *mqtt.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Deps are the collaborators actuators are built from.
type Deps struct {
	Publisher  Publisher
	Topics     mqtt.Topics
	QoS        byte
	HTTPClient *http.Client
	Config     config.ActuatorsConfig
	Logger     Logger
}

// New builds the actuator for kind.
func New(kind automation.ActuatorKind, deps Deps) (automation.Actuator, error) {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	switch kind {
	case KindNotify:
		return NewNotify(deps), nil
	case KindWebhook:
		return NewWebhook(deps), nil
	case KindPublish:
		return NewPublish(deps), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Info describes an actuator for selection lists.
type Info struct {
	Kind        automation.ActuatorKind `json:"kind"`
	Description string                  `json:"description"`
}

// Catalogue holds one actuator per kind.
type Catalogue struct {
	actuators map[automation.ActuatorKind]automation.Actuator
}

// NewCatalogue builds every kind in Kinds().
func NewCatalogue(deps Deps) (*Catalogue, error) {
	c := &Catalogue{actuators: make(map[automation.ActuatorKind]automation.Actuator)}
	for _, kind := range Kinds() {
		a, err := New(kind, deps)
		if err != nil {
			return nil, err
		}
		c.actuators[kind] = a
	}
	return c, nil
}

// Lookup implements automation.ActuatorCatalogue.
func (c *Catalogue) Lookup(kind automation.ActuatorKind) (automation.Actuator, bool) {
	a, ok := c.actuators[kind]
	return a, ok
}

// List returns the catalogue in Kinds() order.
func (c *Catalogue) List() []Info {
	out := make([]Info, 0, len(c.actuators))
	for _, kind := range Kinds() {
		if a, ok := c.actuators[kind]; ok {
			out = append(out, Info{Kind: kind, Description: a.Describe()})
		}
	}
	return out
}

var _ automation.ActuatorCatalogue = (*Catalogue)(nil)
