package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/capability"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
	"github.com/nerrad567/puck-central/internal/puck"
)

// PuckLookup resolves a paired puck by address. Implemented by puck.Registry.
type PuckLookup interface {
	GetByAddress(ctx context.Context, address string) (*puck.Puck, error)
}

// TriggerSignaller runs the rules bound to a trigger. Implemented by
// automation.Dispatcher.
type TriggerSignaller interface {
	Signal(ctx context.Context, puckID string, trigger capability.Trigger) (*automation.DispatchResult, error)
}

// Gesture is a decoded gesture message.
type Gesture struct {
	Address string
	Trigger capability.Trigger
}

// GestureSubscriber feeds puck gestures from the bridge to the dispatcher.
//
// A gesture is signalled only when the address belongs to a paired puck whose
// capabilities offer the trigger. Like BeaconSubscriber, each gesture is
// handled on its own goroutine.
type GestureSubscriber struct {
	client   MQTTClient
	topics   mqtt.Topics
	qos      byte
	pucks    PuckLookup
	triggers TriggerSignaller

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	logger Logger
	wg     sync.WaitGroup
}

// NewGestureSubscriber creates a subscriber. Call Start to begin.
func NewGestureSubscriber(client MQTTClient, topics mqtt.Topics, qos byte, pucks PuckLookup, triggers TriggerSignaller) *GestureSubscriber {
	return &GestureSubscriber{
		client:   client,
		topics:   topics,
		qos:      qos,
		pucks:    pucks,
		triggers: triggers,
		logger:   noopLogger{},
	}
}

// SetLogger sets the subscriber logger.
func (g *GestureSubscriber) SetLogger(logger Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logger = logger
}

// Start subscribes to gestures. Handlers run under ctx.
func (g *GestureSubscriber) Start(ctx context.Context) error {
	g.mu.Lock()
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.mu.Unlock()

	if err := g.client.Subscribe(g.topics.AllBLEGestures(), g.qos, g.handleGesture); err != nil {
		g.cancel()
		return fmt.Errorf("subscribing to gestures: %w", err)
	}
	return nil
}

// Stop unsubscribes, cancels in-flight handlers and waits for them.
func (g *GestureSubscriber) Stop() error {
	err := g.client.Unsubscribe(g.topics.AllBLEGestures())

	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	g.wg.Wait()
	return err
}

// Wait blocks until every in-flight gesture has been handled.
func (g *GestureSubscriber) Wait() {
	g.wg.Wait()
}

func (g *GestureSubscriber) handleGesture(topic string, payload []byte) error {
	gesture, err := parseGesture(topic, payload)
	if err != nil {
		return err
	}

	g.mu.Lock()
	ctx, logger := g.ctx, g.logger
	g.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return nil
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.signal(ctx, logger, gesture)
	}()
	return nil
}

func (g *GestureSubscriber) signal(ctx context.Context, logger Logger, gesture Gesture) {
	p, err := g.pucks.GetByAddress(ctx, gesture.Address)
	if errors.Is(err, puck.ErrPuckNotFound) {
		logger.Debug("gesture from unpaired device", "address", gesture.Address, "trigger", string(gesture.Trigger))
		return
	}
	if err != nil {
		logger.Warn("gesture puck lookup failed", "address", gesture.Address, "error", err)
		return
	}
	if !capability.Offers(p.ServiceCapabilities, gesture.Trigger) {
		logger.Warn("gesture not offered by puck",
			"puck_id", p.ID,
			"address", gesture.Address,
			"trigger", string(gesture.Trigger),
		)
		return
	}

	result, err := g.triggers.Signal(ctx, p.ID, gesture.Trigger)
	if err != nil {
		logger.Warn("gesture dispatch failed", "puck_id", p.ID, "trigger", string(gesture.Trigger), "error", err)
		return
	}
	logger.Debug("gesture handled", "puck_id", p.ID, "trigger", string(gesture.Trigger), "rules", result.Rules)
}

func parseGesture(topic string, payload []byte) (Gesture, error) {
	addr, err := puck.NormalizeAddress(mqtt.LastSegment(topic))
	if err != nil {
		return Gesture{}, fmt.Errorf("%w: gesture topic %q", ErrInvalidMessage, topic)
	}

	var msg GestureMessage
	if err := decode(payload, &msg); err != nil {
		return Gesture{}, err
	}
	trigger := capability.Trigger(msg.Trigger)
	if !capability.Known(trigger) {
		return Gesture{}, fmt.Errorf("%w: trigger %q", ErrInvalidMessage, msg.Trigger)
	}
	return Gesture{Address: addr, Trigger: trigger}, nil
}
