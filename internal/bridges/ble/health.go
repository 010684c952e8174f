package ble

import (
	"fmt"
	"sync"
	"time"
)

// BridgeStatus is the last health report received from the bridge.
type BridgeStatus struct {
	Status     HealthStatus `json:"status"`
	Version    string       `json:"version,omitempty"`
	Adapter    string       `json:"adapter,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	ReportedAt time.Time    `json:"reported_at,omitempty"`
	ReceivedAt time.Time    `json:"received_at,omitempty"`
}

// HealthMonitor tracks the bridge's retained health status.
type HealthMonitor struct {
	client MQTTClient
	topic  string
	qos    byte

	mu       sync.RWMutex
	status   BridgeStatus
	onChange func(BridgeStatus)
	now      func() time.Time
}

// NewHealthMonitor creates a monitor for the bridge health topic.
func NewHealthMonitor(client MQTTClient, topic string, qos byte) *HealthMonitor {
	return &HealthMonitor{
		client: client,
		topic:  topic,
		qos:    qos,
		status: BridgeStatus{Status: HealthUnknown},
		now:    time.Now,
	}
}

// OnChange registers a callback run whenever the reported status changes.
func (h *HealthMonitor) OnChange(fn func(BridgeStatus)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

// Start subscribes to the health topic.
func (h *HealthMonitor) Start() error {
	if err := h.client.Subscribe(h.topic, h.qos, h.handleHealth); err != nil {
		return fmt.Errorf("subscribing to bridge health: %w", err)
	}
	return nil
}

// Stop unsubscribes.
func (h *HealthMonitor) Stop() error {
	return h.client.Unsubscribe(h.topic)
}

// Status returns the last known bridge status.
func (h *HealthMonitor) Status() BridgeStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Healthy reports whether the bridge last said it was healthy or degraded.
func (h *HealthMonitor) Healthy() bool {
	s := h.Status().Status
	return s == HealthHealthy || s == HealthDegraded
}

func (h *HealthMonitor) handleHealth(_ string, payload []byte) error {
	var msg HealthMessage
	if err := decode(payload, &msg); err != nil {
		return err
	}
	if msg.Status == "" {
		return fmt.Errorf("%w: health without status", ErrInvalidMessage)
	}

	h.mu.Lock()
	changed := msg.Status != h.status.Status
	h.status = BridgeStatus{
		Status:     msg.Status,
		Version:    msg.Version,
		Adapter:    msg.Adapter,
		Reason:     msg.Reason,
		ReportedAt: msg.Timestamp,
		ReceivedAt: h.now(),
	}
	status, onChange := h.status, h.onChange
	h.mu.Unlock()

	if changed && onChange != nil {
		onChange(status)
	}
	return nil
}
