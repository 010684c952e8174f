// Puck Central - BLE puck rule automation engine
//
// This is the main entry point for Puck Central. It pairs BLE pucks seen by
// the bridge, discovers which sensor services each one offers, and runs the
// actions bound to the triggers those services can raise.
//
// The BLE radio is owned by a separate bridge process that talks to Puck
// Central over MQTT. Set ble.bridge.managed to have Puck Central supervise it.
//
// Usage:
//
//	puckcentral                                    run the service
//	puckcentral token -subject ha -scope control   print an API bearer token
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/puck-central/internal/actuator"
	"github.com/nerrad567/puck-central/internal/api"
	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/bridges/ble"
	"github.com/nerrad567/puck-central/internal/discovery"
	"github.com/nerrad567/puck-central/internal/infrastructure/config"
	"github.com/nerrad567/puck-central/internal/infrastructure/database"
	"github.com/nerrad567/puck-central/internal/infrastructure/influxdb"
	"github.com/nerrad567/puck-central/internal/infrastructure/logging"
	"github.com/nerrad567/puck-central/internal/infrastructure/metrics"
	"github.com/nerrad567/puck-central/internal/infrastructure/mqtt"
	"github.com/nerrad567/puck-central/internal/pairing"
	"github.com/nerrad567/puck-central/internal/process"
	"github.com/nerrad567/puck-central/internal/puck"
	"github.com/nerrad567/puck-central/internal/telemetry"
	"github.com/nerrad567/puck-central/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Shutdown happens through the defer chain in reverse start order: the API
// goes first, then beacon intake, discovery sessions, the bridge, MQTT,
// InfluxDB and finally the database.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Puck Central",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	pucks := puck.NewRegistry(puck.NewSQLiteRepository(db.DB))
	pucks.SetLogger(log.Component("puck"))
	if refreshErr := pucks.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading puck registry: %w", refreshErr)
	}
	log.Info("puck registry initialised", "pucks", pucks.Count())

	// MQTT
	topics := mqtt.NewTopics(cfg.BLE.TopicPrefix)
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic_prefix", topics.Prefix(),
	)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	m := metrics.New()
	recorder := telemetry.NewRecorder(recorderOptions(m, influxClient, mqttClient, topics, log))

	// BLE bridge
	health := ble.NewHealthMonitor(mqttClient, topics.BridgeHealth(), mqttClient.QoS())
	health.OnChange(func(st ble.BridgeStatus) {
		log.Info("BLE bridge status changed", "status", st.Status, "reason", st.Reason)
	})
	if startErr := health.Start(); startErr != nil {
		return fmt.Errorf("starting bridge health monitor: %w", startErr)
	}
	defer health.Stop() //nolint:errcheck // Best effort on shutdown

	if cfg.BLE.Bridge.Managed {
		bridge, startErr := startBridge(ctx, cfg, health, m, log)
		if startErr != nil {
			return fmt.Errorf("starting BLE bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping BLE bridge")
			if stopErr := bridge.Stop(); stopErr != nil {
				log.Error("error stopping BLE bridge", "error", stopErr)
			}
		}()
	} else {
		log.Info("BLE bridge not managed, expecting an external bridge")
	}

	transport := ble.NewTransport(mqttClient, topics, ble.TransportConfig{
		QoS:         mqttClient.QoS(),
		EventBuffer: cfg.BLE.EventBuffer,
	})
	transport.SetLogger(log.Component("ble"))
	if startErr := transport.Start(); startErr != nil {
		return fmt.Errorf("starting BLE transport: %w", startErr)
	}
	defer transport.Stop() //nolint:errcheck // Best effort on shutdown

	// Discovery
	coordinator := discovery.NewCoordinator(transport, pucks, discovery.Config{
		SessionTimeout: cfg.BLE.SessionTimeout,
	})
	coordinator.SetLogger(log.Component("discovery"))
	coordinator.AddObserver(recorder)
	if startErr := coordinator.Start(ctx); startErr != nil {
		return fmt.Errorf("starting discovery coordinator: %w", startErr)
	}
	defer func() {
		log.Info("stopping discovery sessions", "active", coordinator.ActiveCount())
		coordinator.Stop()
	}()

	var refresher *discovery.Refresher
	if cfg.BLE.RefreshSchedule != "" {
		refresher, err = discovery.NewRefresher(pucks, coordinator, cfg.BLE.RefreshSchedule)
		if err != nil {
			return fmt.Errorf("creating discovery refresher: %w", err)
		}
		refresher.SetLogger(log.Component("refresher"))
		if startErr := refresher.Start(ctx); startErr != nil {
			return fmt.Errorf("starting discovery refresher: %w", startErr)
		}
		defer refresher.Stop()
		log.Info("discovery refresh scheduled", "schedule", cfg.BLE.RefreshSchedule)
	}

	// Automation
	catalogue, err := actuator.NewCatalogue(actuator.Deps{
		Publisher:  mqttClient,
		Topics:     topics,
		QoS:        mqttClient.QoS(),
		HTTPClient: &http.Client{Timeout: cfg.Actuators.Webhook.Timeout},
		Config:     cfg.Actuators,
		Logger:     log.Component("actuator"),
	})
	if err != nil {
		return fmt.Errorf("building actuators: %w", err)
	}
	dispatcher := automation.NewDispatcher(
		automation.NewSQLiteRepository(db.DB),
		catalogue,
		log.Component("automation"),
	)
	dispatcher.AddObserver(recorder)

	// Pairing
	pairingSvc := pairing.NewService(pucks, coordinator, dispatcher, pairing.Config{
		AutoPair:     cfg.Pairing.AutoPair,
		CandidateTTL: cfg.Pairing.CandidateTTL,
	})
	pairingSvc.SetLogger(log.Component("pairing"))
	pairingSvc.AddObserver(recorder)

	beacons := ble.NewBeaconSubscriber(mqttClient, topics, mqttClient.QoS(), pairingSvc)
	beacons.SetLogger(log.Component("beacons"))
	if startErr := beacons.Start(ctx); startErr != nil {
		return fmt.Errorf("starting beacon subscriber: %w", startErr)
	}
	defer beacons.Stop() //nolint:errcheck // Best effort on shutdown

	gestures := ble.NewGestureSubscriber(mqttClient, topics, mqttClient.QoS(), pucks, dispatcher)
	gestures.SetLogger(log.Component("gestures"))
	if startErr := gestures.Start(ctx); startErr != nil {
		return fmt.Errorf("starting gesture subscriber: %w", startErr)
	}
	defer gestures.Stop() //nolint:errcheck // Best effort on shutdown

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// API
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		srv, newErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log.Component("api"),
			Pucks:     pucks,
			Rules:     dispatcher,
			Actuators: catalogue,
			Discovery: coordinator,
			Pairing:   pairingSvc,
			Refresher: refresher,
			Metrics:   m,
			Bridge:    health,
			Checks:    checks,
			Version:   version,
		})
		if newErr != nil {
			return fmt.Errorf("creating API server: %w", newErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PUCKCENTRAL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PUCKCENTRAL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// recorderOptions wires the telemetry sinks. A disabled InfluxDB client is
// left out rather than stored as a typed nil.
func recorderOptions(m *metrics.Metrics, influxClient *influxdb.Client, publisher telemetry.Publisher, topics mqtt.Topics, log *logging.Logger) telemetry.Options {
	opts := telemetry.Options{
		Metrics:   m,
		Publisher: publisher,
		Topics:    topics,
		Logger:    log.Component("telemetry"),
	}
	if influxClient != nil {
		opts.Samples = influxClient
	}
	return opts
}

// startBridge starts the supervised BLE bridge process with the bridge's own
// health reports as its watchdog.
func startBridge(ctx context.Context, cfg *config.Config, health *ble.HealthMonitor, m *metrics.Metrics, log *logging.Logger) (*process.Manager, error) {
	bridgeCfg := process.BridgeConfig(cfg.BLE, cfg.MQTT)
	bridgeCfg.HealthCheckFunc = process.BridgeWatchdog(health)
	bridgeCfg.OnRestart = func(attempt int) {
		m.IncBridgeRestarts()
		log.Warn("restarting BLE bridge", "attempt", attempt)
	}

	manager := process.NewManager(bridgeCfg)
	manager.SetLogger(log.Component(process.BridgeName))

	log.Info("starting BLE bridge",
		"binary", bridgeCfg.Binary,
		"adapter", cfg.BLE.Bridge.Adapter,
	)
	if err := manager.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("BLE bridge started", "pid", manager.PID())
	return manager, nil
}
