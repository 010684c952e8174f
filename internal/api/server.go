package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/puck-central/internal/actuator"
	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/bridges/ble"
	"github.com/nerrad567/puck-central/internal/discovery"
	"github.com/nerrad567/puck-central/internal/infrastructure/config"
	"github.com/nerrad567/puck-central/internal/infrastructure/logging"
	"github.com/nerrad567/puck-central/internal/infrastructure/metrics"
	"github.com/nerrad567/puck-central/internal/pairing"
	"github.com/nerrad567/puck-central/internal/puck"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by the infrastructure clients (database,
// MQTT, InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BridgeStatusProvider reports the BLE bridge's last health message.
type BridgeStatusProvider interface {
	Status() ble.BridgeStatus
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Pucks     *puck.Registry
	Rules     *automation.Dispatcher
	Actuators *actuator.Catalogue
	Discovery *discovery.Coordinator
	Pairing   *pairing.Service

	// Optional.
	Refresher *discovery.Refresher
	Metrics   *metrics.Metrics
	Bridge    BridgeStatusProvider
	Checks    map[string]HealthChecker
	Version   string
}

// Server is the HTTP API server for Puck Central.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	pucks     *puck.Registry
	rules     *automation.Dispatcher
	actuators *actuator.Catalogue
	discovery *discovery.Coordinator
	pairing   *pairing.Service
	refresher *discovery.Refresher
	metrics   *metrics.Metrics
	bridge    BridgeStatusProvider
	checks    map[string]HealthChecker
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Pucks == nil:
		return nil, fmt.Errorf("puck registry is required")
	case deps.Rules == nil:
		return nil, fmt.Errorf("rule dispatcher is required")
	case deps.Actuators == nil:
		return nil, fmt.Errorf("actuator catalogue is required")
	case deps.Discovery == nil:
		return nil, fmt.Errorf("discovery coordinator is required")
	case deps.Pairing == nil:
		return nil, fmt.Errorf("pairing service is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		pucks:     deps.Pucks,
		rules:     deps.Rules,
		actuators: deps.Actuators,
		discovery: deps.Discovery,
		pairing:   deps.Pairing,
		refresher: deps.Refresher,
		metrics:   deps.Metrics,
		bridge:    deps.Bridge,
		checks:    deps.Checks,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
