package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/puck-central/internal/gatt"
	"github.com/nerrad567/puck-central/internal/puck"
)

// Logger defines the logging interface used by the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Admission is the answer to a discovery request.
type Admission int

const (
	// AdmissionStarted means a new session was created for the address.
	AdmissionStarted Admission = iota + 1

	// AdmissionDuplicate means a session for the address was already live
	// and the request was dropped.
	AdmissionDuplicate
)

func (a Admission) String() string {
	switch a {
	case AdmissionStarted:
		return "started"
	case AdmissionDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Observer is told about session starts and outcomes. Calls are made from
// session goroutines and must not block for long.
type Observer interface {
	SessionStarted(address string, active int)
	SessionFinished(res gatt.Result, active int)
}

// Config holds coordinator settings.
type Config struct {
	// SessionTimeout is passed to every session. Zero disables it.
	SessionTimeout time.Duration
}

// Coordinator owns the per-address session table.
//
// Thread Safety: all methods are safe for concurrent use.
type Coordinator struct {
	transport gatt.Transport
	store     gatt.CapabilityStore
	cfg       Config
	logger    Logger

	mu        sync.Mutex
	sessions  map[string]*gatt.Session
	observers []Observer
	ctx       context.Context //nolint:containedctx // lifetime of all sessions
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewCoordinator creates a coordinator. Call Start before requesting discovery.
func NewCoordinator(transport gatt.Transport, store gatt.CapabilityStore, cfg Config) *Coordinator {
	return &Coordinator{
		transport: transport,
		store:     store,
		cfg:       cfg,
		logger:    noopLogger{},
		sessions:  make(map[string]*gatt.Session),
	}
}

// SetLogger sets the logger for the coordinator and its sessions.
func (c *Coordinator) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// AddObserver registers o for session notifications.
func (c *Coordinator) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Start enables admission. Sessions inherit ctx; cancelling it or calling
// Stop ends them in gatt.StateError.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("discovery coordinator started", "session_timeout", c.cfg.SessionTimeout.String())
	return nil
}

// Stop cancels all live sessions and waits for them to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	logger := c.logger
	c.ctx, c.cancel = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	logger.Info("discovery coordinator stopped")
}

// RequestDiscovery starts a session for address unless one is already live.
//
// Returns:
//   - AdmissionStarted when a session was created
//   - AdmissionDuplicate when one was already running (not an error)
//   - puck.ErrInvalidAddress for a malformed address
//   - ErrNotRunning before Start or after Stop
func (c *Coordinator) RequestDiscovery(address string) (Admission, error) {
	addr, err := puck.NormalizeAddress(address)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if c.ctx == nil {
		c.mu.Unlock()
		return 0, ErrNotRunning
	}
	if _, live := c.sessions[addr]; live {
		logger := c.logger
		c.mu.Unlock()
		logger.Debug("discovery already in progress", "address", addr)
		return AdmissionDuplicate, nil
	}

	opts := []gatt.Option{gatt.WithLogger(c.logger)}
	if c.cfg.SessionTimeout > 0 {
		opts = append(opts, gatt.WithTimeout(c.cfg.SessionTimeout))
	}
	session := gatt.NewSession(addr, c.transport, c.store, opts...)
	c.sessions[addr] = session
	active := len(c.sessions)
	observers := c.observers
	logger := c.logger
	ctx := c.ctx
	c.wg.Add(1)
	c.mu.Unlock()

	for _, o := range observers {
		o.SessionStarted(addr, active)
	}
	logger.Info("discovery started", "address", addr, "active", active)

	go c.run(ctx, session)
	return AdmissionStarted, nil
}

func (c *Coordinator) run(ctx context.Context, session *gatt.Session) {
	defer c.wg.Done()

	res := session.Run(ctx)

	c.mu.Lock()
	delete(c.sessions, session.Address())
	active := len(c.sessions)
	observers := c.observers
	logger := c.logger
	c.mu.Unlock()

	if res.Err != nil {
		logger.Warn("discovery failed",
			"address", res.Address,
			"status", res.Status(),
			"duration", res.Duration().String(),
			"error", res.Err,
		)
	} else {
		logger.Info("discovery complete",
			"address", res.Address,
			"services", len(res.Services),
			"duration", res.Duration().String(),
		)
	}

	for _, o := range observers {
		o.SessionFinished(res, active)
	}
}

// Active reports whether a session is live for address.
func (c *Coordinator) Active(address string) bool {
	addr, err := puck.NormalizeAddress(address)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, live := c.sessions[addr]
	return live
}

// ActiveCount returns the number of live sessions.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// SessionInfo is a snapshot of one live session.
type SessionInfo struct {
	Address string `json:"address"`
	State   string `json:"state"`
}

// Sessions returns a snapshot of the live sessions sorted by address.
func (c *Coordinator) Sessions() []SessionInfo {
	c.mu.Lock()
	out := make([]SessionInfo, 0, len(c.sessions))
	for addr, s := range c.sessions {
		out = append(out, SessionInfo{Address: addr, State: s.State().String()})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
