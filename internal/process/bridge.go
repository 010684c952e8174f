package process

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/puck-central/internal/bridges/ble"
	"github.com/nerrad567/puck-central/internal/infrastructure/config"
)

// BridgeName identifies the BLE bridge in logs and stats.
const BridgeName = "ble-bridge"

// BridgeConfig builds the supervisor config for the BLE bridge. The bridge
// is pointed at the same broker and topic prefix as Puck Central; extra
// arguments from the config come last so they can override.
func BridgeConfig(cfg config.BLEConfig, mq config.MQTTConfig) Config {
	b := cfg.Bridge

	args := []string{
		"--broker", brokerAddress(mq.Broker),
		"--topic-prefix", cfg.TopicPrefix,
	}
	if b.Adapter != "" {
		args = append(args, "--adapter", b.Adapter)
	}
	if mq.Auth.Username != "" {
		args = append(args, "--username", mq.Auth.Username)
	}
	args = append(args, b.Args...)

	var env []string
	if mq.Auth.Password != "" {
		env = append(env, "PUCKBRIDGE_MQTT_PASSWORD="+mq.Auth.Password)
	}

	c := DefaultConfig(BridgeName, b.Binary, args)
	c.Env = env
	c.RestartOnFailure = b.RestartOnFailure
	c.MaxRestartAttempts = b.MaxRestartAttempts
	if b.RestartDelaySeconds > 0 {
		c.RestartDelay = time.Duration(b.RestartDelaySeconds) * time.Second
	}
	return c
}

func brokerAddress(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s", scheme, b.Host+":"+strconv.Itoa(b.Port))
}

// BridgeStatusSource reports the bridge's last health message.
// *ble.HealthMonitor implements it.
type BridgeStatusSource interface {
	Status() ble.BridgeStatus
}

// BridgeWatchdog returns a health check for Config.HealthCheckFunc that
// fails while the bridge reports itself unhealthy or offline. A bridge that
// has not reported yet passes.
func BridgeWatchdog(src BridgeStatusSource) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := src.Status()
		switch st.Status {
		case ble.HealthUnhealthy, ble.HealthOffline:
			if st.Reason != "" {
				return fmt.Errorf("%w: bridge %s: %s", ErrUnhealthy, st.Status, st.Reason)
			}
			return fmt.Errorf("%w: bridge %s", ErrUnhealthy, st.Status)
		default:
			return nil
		}
	}
}
