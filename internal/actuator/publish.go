package actuator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
)

// Publish sends a configured payload to a configured MQTT topic, typically
// a command topic of another system.
type Publish struct {
	publisher Publisher
	qos       byte
}

// NewPublish creates a publish actuator.
func NewPublish(deps Deps) *Publish {
	return &Publish{publisher: deps.Publisher, qos: deps.QoS}
}

func (p *Publish) Kind() automation.ActuatorKind { return KindPublish }

func (p *Publish) Describe() string { return "Publish an MQTT message" }

// BuildConfiguration requires "topic" and accepts "payload" (string or any
// JSON value) and "retained".
func (p *Publish) BuildConfiguration(ctx context.Context, initial automation.Action, rule *automation.Rule, params map[string]any, onComplete func(automation.Action, *automation.Rule)) error {
	topic, err := requireString(params, "topic")
	if err != nil {
		return err
	}
	if err := mqtt.ValidatePublishTopic(topic); err != nil {
		return fmt.Errorf("%w: topic %q", ErrInvalidParam, topic)
	}
	retained, err := boolParam(params, "retained")
	if err != nil {
		return err
	}
	payload := params["payload"]
	if _, err := encodePayload(payload); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	action := initial.DeepCopy()
	action.Actuator = KindPublish
	action.Config = map[string]any{
		"topic":    topic,
		"payload":  payload,
		"retained": retained,
	}
	onComplete(action, rule)
	return nil
}

// Execute publishes the configured message.
func (p *Publish) Execute(_ context.Context, _ automation.Firing, action automation.Action) error {
	if p.publisher == nil {
		return ErrNoPublisher
	}
	topic := configString(action.Config, "topic")
	if topic == "" {
		return fmt.Errorf("%w: topic", ErrMissingParam)
	}
	payload, err := encodePayload(action.Config["payload"])
	if err != nil {
		return err
	}
	retained, _ := action.Config["retained"].(bool) //nolint:errcheck // type assertion, false on mismatch

	if err := p.publisher.Publish(topic, payload, p.qos, retained); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}

// encodePayload sends strings verbatim and everything else as JSON.
func encodePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(p), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: payload: %w", ErrInvalidParam, err)
		}
		return b, nil
	}
}
