package process

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/puck-central/internal/bridges/ble"
	"github.com/nerrad567/puck-central/internal/infrastructure/config"
)

func TestBridgeConfig(t *testing.T) {
	ble := config.BLEConfig{
		TopicPrefix: "puckcentral",
		Bridge: config.BLEBridgeConfig{
			Managed:             true,
			Binary:              "/usr/local/bin/puck-bridge",
			Args:                []string{"--scan-window", "50ms"},
			Adapter:             "hci1",
			RestartOnFailure:    true,
			RestartDelaySeconds: 3,
			MaxRestartAttempts:  4,
		},
	}
	mq := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "localhost", Port: 1883},
		Auth:   config.MQTTAuthConfig{Username: "central", Password: "s3cret"},
	}

	cfg := BridgeConfig(ble, mq)

	if cfg.Name != BridgeName {
		t.Errorf("Name = %q, want %q", cfg.Name, BridgeName)
	}
	if cfg.Binary != "/usr/local/bin/puck-bridge" {
		t.Errorf("Binary = %q", cfg.Binary)
	}
	wantArgs := []string{
		"--broker", "tcp://localhost:1883",
		"--topic-prefix", "puckcentral",
		"--adapter", "hci1",
		"--username", "central",
		"--scan-window", "50ms",
	}
	if !slices.Equal(cfg.Args, wantArgs) {
		t.Errorf("Args = %v, want %v", cfg.Args, wantArgs)
	}
	for _, a := range cfg.Args {
		if a == "s3cret" {
			t.Error("password passed on the command line")
		}
	}
	if !slices.Equal(cfg.Env, []string{"PUCKBRIDGE_MQTT_PASSWORD=s3cret"}) {
		t.Errorf("Env = %v", cfg.Env)
	}
	if cfg.RestartDelay != 3*time.Second {
		t.Errorf("RestartDelay = %v, want 3s", cfg.RestartDelay)
	}
	if cfg.MaxRestartAttempts != 4 {
		t.Errorf("MaxRestartAttempts = %d, want 4", cfg.MaxRestartAttempts)
	}
	if !cfg.RestartOnFailure {
		t.Error("RestartOnFailure = false, want true")
	}
}

func TestBridgeConfig_Minimal(t *testing.T) {
	ble := config.BLEConfig{
		TopicPrefix: "pc",
		Bridge:      config.BLEBridgeConfig{Binary: "puck-bridge"},
	}
	mq := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "broker.lan", Port: 8883, TLS: true},
	}

	cfg := BridgeConfig(ble, mq)

	wantArgs := []string{"--broker", "ssl://broker.lan:8883", "--topic-prefix", "pc"}
	if !slices.Equal(cfg.Args, wantArgs) {
		t.Errorf("Args = %v, want %v", cfg.Args, wantArgs)
	}
	if len(cfg.Env) != 0 {
		t.Errorf("Env = %v, want empty", cfg.Env)
	}
	if cfg.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want default 5s", cfg.RestartDelay)
	}
	if cfg.RestartOnFailure {
		t.Error("RestartOnFailure = true, want false from config")
	}
}

type fixedStatus struct{ s ble.BridgeStatus }

func (f fixedStatus) Status() ble.BridgeStatus { return f.s }

func TestBridgeWatchdog(t *testing.T) {
	tests := []struct {
		status  ble.HealthStatus
		wantErr bool
	}{
		{"", false},
		{ble.HealthUnknown, false},
		{ble.HealthStarting, false},
		{ble.HealthHealthy, false},
		{ble.HealthDegraded, false},
		{ble.HealthUnhealthy, true},
		{ble.HealthOffline, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			check := BridgeWatchdog(fixedStatus{s: ble.BridgeStatus{Status: tt.status, Reason: "adapter reset"}})
			err := check(context.Background())
			if tt.wantErr {
				if !errors.Is(err, ErrUnhealthy) {
					t.Errorf("check() = %v, want ErrUnhealthy", err)
				}
				return
			}
			if err != nil {
				t.Errorf("check() = %v, want nil", err)
			}
		})
	}
}
