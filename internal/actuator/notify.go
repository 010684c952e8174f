package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/capability"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
)

// Notify publishes a short message on {prefix}/notify/{channel}.
type Notify struct {
	publisher      Publisher
	topics         mqtt.Topics
	qos            byte
	defaultChannel string
}

// NotifyMessage is the JSON body published by Notify.
type NotifyMessage struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	PuckID  string    `json:"puck_id"`
	Trigger string    `json:"trigger"`
	RuleID  string    `json:"rule_id"`
	SentAt  time.Time `json:"sent_at"`
}

// NewNotify creates a notify actuator.
func NewNotify(deps Deps) *Notify {
	channel := deps.Config.Notify.DefaultChannel
	if channel == "" {
		channel = "default"
	}
	return &Notify{
		publisher:      deps.Publisher,
		topics:         deps.Topics,
		qos:            deps.QoS,
		defaultChannel: channel,
	}
}

func (n *Notify) Kind() automation.ActuatorKind { return KindNotify }

func (n *Notify) Describe() string { return "Send a notification" }

// BuildConfiguration requires "message" and accepts "title" and "channel".
func (n *Notify) BuildConfiguration(ctx context.Context, initial automation.Action, rule *automation.Rule, params map[string]any, onComplete func(automation.Action, *automation.Rule)) error {
	message, err := requireString(params, "message")
	if err != nil {
		return err
	}
	title, hasTitle, err := stringParam(params, "title")
	if err != nil {
		return err
	}
	if !hasTitle {
		title = capability.Describe(rule.Trigger)
	}
	channel, hasChannel, err := stringParam(params, "channel")
	if err != nil {
		return err
	}
	if !hasChannel {
		channel = n.defaultChannel
	}
	if err := mqtt.ValidatePublishTopic(n.topics.Notify(channel)); err != nil {
		return fmt.Errorf("%w: channel %q", ErrInvalidParam, channel)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	action := initial.DeepCopy()
	action.Actuator = KindNotify
	action.Config = map[string]any{
		"message": message,
		"title":   title,
		"channel": channel,
	}
	onComplete(action, rule)
	return nil
}

// Execute publishes the notification.
func (n *Notify) Execute(_ context.Context, fired automation.Firing, action automation.Action) error {
	if n.publisher == nil {
		return ErrNoPublisher
	}
	channel := configString(action.Config, "channel")
	if channel == "" {
		channel = n.defaultChannel
	}

	payload, err := json.Marshal(NotifyMessage{
		Title:   configString(action.Config, "title"),
		Message: configString(action.Config, "message"),
		PuckID:  fired.PuckID,
		Trigger: string(fired.Trigger),
		RuleID:  fired.RuleID,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	topic := n.topics.Notify(channel)
	if err := n.publisher.Publish(topic, payload, n.qos, false); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}
