package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/puck-central/internal/auth"
	"github.com/nerrad567/puck-central/internal/infrastructure/config"
	"github.com/nerrad567/puck-central/internal/infrastructure/logging"
	"github.com/nerrad567/puck-central/internal/infrastructure/metrics"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("PUCKCENTRAL_CONFIG", path)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("PUCKCENTRAL_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want a config loading error", err)
	}
}

func TestRun_InvalidBLEConfig(t *testing.T) {
	writeConfig(t, `
service:
  id: test
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
logging:
  output: discard
ble:
  topic_prefix: "pucks/#"
  bridge:
    managed: true
    binary: ""
`)

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail with a wildcard topic prefix")
	}
	for _, want := range []string{"ble.topic_prefix", "ble.bridge.binary"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("run() error = %v, want mention of %s", err, want)
		}
	}
}

// Port 19999 has no broker, so run fails after the database is migrated.
func TestRun_NoBroker(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	writeConfig(t, `
service:
  id: test
database:
  path: "`+dbPath+`"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-no-broker"
logging:
  output: discard
api:
  enabled: false
`)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a broker")
	}
	if !strings.Contains(err.Error(), "connecting to MQTT") {
		t.Errorf("run() error = %v, want an MQTT connection error", err)
	}
	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("database not created before MQTT connect: %v", statErr)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("PUCKCENTRAL_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("PUCKCENTRAL_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(configs/config.yaml) error = %v", err)
	}
	if cfg.BLE.TopicPrefix != "puckcentral" {
		t.Errorf("BLE.TopicPrefix = %q, want puckcentral", cfg.BLE.TopicPrefix)
	}
	if cfg.Pairing.CandidateTTL != 10*time.Minute {
		t.Errorf("Pairing.CandidateTTL = %v, want 10m", cfg.Pairing.CandidateTTL)
	}
}

func TestRecorderOptions_DisabledInflux(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "discard"}, "test")

	opts := recorderOptions(metrics.New(), nil, nil, mqtt.NewTopics("puckcentral"), log)
	if opts.Samples != nil {
		t.Error("Samples set for a disabled InfluxDB client")
	}
	if opts.Metrics == nil {
		t.Error("Metrics not wired")
	}
}

func TestRunToken(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	writeConfig(t, `
service:
  id: test
api:
  auth:
    jwt_secret: "`+secret+`"
`)

	var out strings.Builder
	if err := runToken([]string{"-subject", "home-assistant", "-scope", "control", "-ttl", "1h"}, &out); err != nil {
		t.Fatalf("runToken() error = %v", err)
	}

	claims, err := auth.Parse(strings.TrimSpace(out.String()), secret)
	if err != nil {
		t.Fatalf("printed token does not parse: %v", err)
	}
	if claims.Subject != "home-assistant" || claims.Scope != auth.ScopeControl {
		t.Errorf("claims = %+v", claims)
	}
}

func TestRunToken_Errors(t *testing.T) {
	writeConfig(t, "service:\n  id: test\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"auth disabled", []string{"-subject", "x"}, "jwt_secret is not set"},
		{"bad scope", []string{"-subject", "x", "-scope", "owner"}, "unknown scope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			err := runToken(tt.args, &out)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("runToken() error = %v, want %q", err, tt.want)
			}
		})
	}
}
