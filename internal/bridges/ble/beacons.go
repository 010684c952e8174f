package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
	"github.com/nerrad567/puck-central/internal/pairing"
	"github.com/nerrad567/puck-central/internal/puck"
)

// BeaconHandler consumes beacon sightings. Implemented by pairing.Service.
type BeaconHandler interface {
	HandleSighting(ctx context.Context, s pairing.Sighting) (pairing.Outcome, error)
}

// BeaconSubscriber feeds beacon transitions from the bridge to a handler.
//
// Each sighting is handled on its own goroutine so the MQTT callback never
// waits on the database or on rule dispatch.
type BeaconSubscriber struct {
	client  MQTTClient
	topics  mqtt.Topics
	qos     byte
	handler BeaconHandler

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	logger Logger
	wg     sync.WaitGroup
}

// NewBeaconSubscriber creates a subscriber. Call Start to begin.
func NewBeaconSubscriber(client MQTTClient, topics mqtt.Topics, qos byte, handler BeaconHandler) *BeaconSubscriber {
	return &BeaconSubscriber{
		client:  client,
		topics:  topics,
		qos:     qos,
		handler: handler,
		logger:  noopLogger{},
	}
}

// SetLogger sets the subscriber logger.
func (b *BeaconSubscriber) SetLogger(logger Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

// Start subscribes to beacon transitions. Handlers run under ctx.
func (b *BeaconSubscriber) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	if err := b.client.Subscribe(b.topics.AllBeacons(), b.qos, b.handleBeacon); err != nil {
		b.cancel()
		return fmt.Errorf("subscribing to beacons: %w", err)
	}
	return nil
}

// Stop unsubscribes, cancels in-flight handlers and waits for them.
func (b *BeaconSubscriber) Stop() error {
	err := b.client.Unsubscribe(b.topics.AllBeacons())

	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	return err
}

// Wait blocks until every in-flight sighting has been handled.
func (b *BeaconSubscriber) Wait() {
	b.wg.Wait()
}

func (b *BeaconSubscriber) handleBeacon(topic string, payload []byte) error {
	sighting, err := parseSighting(topic, payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	ctx, logger := b.ctx, b.logger
	b.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return nil
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		outcome, err := b.handler.HandleSighting(ctx, sighting)
		if err != nil {
			logger.Warn("beacon sighting failed",
				"address", sighting.Address,
				"transition", string(sighting.Transition),
				"error", err,
			)
			return
		}
		logger.Debug("beacon sighting handled",
			"address", sighting.Address,
			"beacon", sighting.Beacon.String(),
			"outcome", outcome.String(),
		)
	}()
	return nil
}

func parseSighting(topic string, payload []byte) (pairing.Sighting, error) {
	transition := pairing.Transition(mqtt.LastSegment(topic))
	if transition != pairing.TransitionEntered && transition != pairing.TransitionExited {
		return pairing.Sighting{}, fmt.Errorf("%w: beacon topic %q", ErrInvalidMessage, topic)
	}

	var msg BeaconMessage
	if err := decode(payload, &msg); err != nil {
		return pairing.Sighting{}, err
	}
	return pairing.Sighting{
		Transition: transition,
		Beacon: puck.BeaconIdentity{
			ProximityUUID: msg.ProximityUUID,
			Major:         msg.Major,
			Minor:         msg.Minor,
		},
		Address: msg.Address,
		RSSI:    msg.RSSI,
		SeenAt:  msg.Timestamp,
	}, nil
}
