package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// maxConsecutiveHealthFailures kills the process after this many failed
// watchdog checks in a row.
const maxConsecutiveHealthFailures = 3

// Config holds configuration for a managed subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format),
	// appended to the parent's environment.
	Env []string

	// RestartOnFailure enables automatic restart when the process exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the base delay before the first restart. Each further
	// attempt doubles it, up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a process must run before its restart
	// count is reset.
	StableThreshold time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait for graceful shutdown before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheckFunc is the watchdog. If nil, a running process is healthy.
	HealthCheckFunc     func(ctx context.Context) error
	HealthCheckInterval time.Duration

	// OnStart is called each time the process starts.
	OnStart func()

	// OnStop is called when the process stops; err is nil for a requested stop.
	OnStop func(err error)

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartOnFailure:    true,
		RestartDelay:        5 * time.Second,
		MaxRestartDelay:     5 * time.Minute,
		StableThreshold:     2 * time.Minute,
		MaxRestartAttempts:  10,
		GracefulTimeout:     10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Logger defines the logging interface for the process manager.
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

// Manager supervises one subprocess.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	config Config

	mu            sync.RWMutex
	logger        Logger
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool
	supervising   bool
	done          chan struct{}
}

// NewManager creates a process manager. Zero durations take the defaults
// of DefaultConfig.
func NewManager(cfg Config) *Manager {
	defaults := DefaultConfig(cfg.Name, cfg.Binary, cfg.Args)
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = defaults.RestartDelay
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = defaults.MaxRestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = defaults.StableThreshold
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaults.GracefulTimeout
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = defaults.HealthCheckInterval
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

func (m *Manager) log() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// Start launches the subprocess and begins supervising it.
// Returns an error if the first launch fails; later failures are handled by
// the restart policy.
func (m *Manager) Start(ctx context.Context) error {
	if m.config.Binary == "" {
		return ErrNoBinary
	}

	m.mu.Lock()
	if m.supervising {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	m.supervising = true
	m.stopRequested = false
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.startProcess(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.supervising = false
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.monitor(ctx)
	return nil
}

func (m *Manager) startProcess(ctx context.Context) error {
	logger := m.log()
	logger.Info("starting process", "name", m.config.Name, "binary", m.config.Binary)

	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // Binary comes from operator config

	// Own process group so shutdown reaches the bridge's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(m.config.Env) > 0 {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.captureOutput("stdout", stdout)
	go m.captureOutput("stderr", stderr)

	logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)

	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

// captureOutput logs the stream line by line.
func (m *Manager) captureOutput(stream string, r io.Reader) {
	logger := m.log()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("process output",
			"name", m.config.Name,
			"stream", stream,
			"line", scanner.Text(),
		)
	}
}

// wait blocks until the process exits or the watchdog gives up on it.
func (m *Manager) wait(ctx context.Context, cmd *exec.Cmd) error {
	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	if m.config.HealthCheckFunc == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	logger := m.log()
	failures := 0
	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			// CommandContext kills the process; collect its exit.
			<-exitCh
			return ctx.Err()

		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := m.config.HealthCheckFunc(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					logger.Info("health check recovered", "name", m.config.Name, "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			logger.Warn("health check failed",
				"name", m.config.Name,
				"error", err,
				"consecutive_failures", failures,
			)
			if failures < maxConsecutiveHealthFailures {
				continue
			}

			logger.Error("health check failed repeatedly, killing process", "name", m.config.Name)
			if cmd.Process != nil {
				cmd.Process.Kill() //nolint:errcheck // Exit is collected below
			}
			select {
			case <-exitCh:
			case <-time.After(5 * time.Second):
			}
			return fmt.Errorf("%w: %d consecutive failures: %w", ErrUnhealthy, failures, err)
		}
	}
}

// monitor watches the process and applies the restart policy.
func (m *Manager) monitor(ctx context.Context) {
	m.mu.RLock()
	done := m.done
	m.mu.RUnlock()
	defer func() {
		m.mu.Lock()
		m.supervising = false
		m.mu.Unlock()
		close(done)
	}()

	for {
		m.mu.RLock()
		cmd := m.cmd
		started := m.startTime
		m.mu.RUnlock()

		err := m.wait(ctx, cmd)
		logger := m.log()

		m.mu.Lock()
		stopRequested := m.stopRequested
		if stopRequested || ctx.Err() != nil {
			m.status = StatusStopped
			m.mu.Unlock()
			logger.Info("process stopped", "name", m.config.Name)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}
		m.lastError = err
		m.status = StatusFailed
		if time.Since(started) >= m.config.StableThreshold {
			m.restartCount = 0
		}
		m.mu.Unlock()

		logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err)
		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}

		if !m.config.RestartOnFailure || !IsRecoverable(err) {
			logger.Info("not restarting", "name", m.config.Name)
			return
		}

		for {
			m.mu.Lock()
			m.restartCount++
			attempt := m.restartCount
			m.mu.Unlock()

			if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
				logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
				return
			}

			delay := m.calculateBackoffDelay(attempt)
			logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay.String())
			if m.config.OnRestart != nil {
				m.config.OnRestart(attempt)
			}

			select {
			case <-ctx.Done():
				m.setStatus(StatusStopped)
				return
			case <-time.After(delay):
			}

			m.mu.RLock()
			stopRequested = m.stopRequested
			m.mu.RUnlock()
			if stopRequested {
				m.setStatus(StatusStopped)
				return
			}

			if err := m.startProcess(ctx); err != nil {
				logger.Error("failed to restart process", "name", m.config.Name, "error", err)
				m.mu.Lock()
				m.lastError = err
				m.mu.Unlock()
				continue
			}
			break
		}
	}
}

// calculateBackoffDelay returns RestartDelay doubled per previous attempt,
// capped at MaxRestartDelay.
func (m *Manager) calculateBackoffDelay(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return delay
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Stop gracefully stops the subprocess.
// It sends SIGTERM to the process group and waits, then SIGKILL if needed.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status == StatusStopped || m.done == nil {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning
	m.mu.Unlock()

	logger := m.log()
	if running && cmd != nil && cmd.Process != nil {
		pid := cmd.Process.Pid
		logger.Info("stopping process", "name", m.config.Name, "pid", pid)

		// Negative PID signals the whole group.
		if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
		}

		select {
		case <-done:
			return nil
		case <-time.After(m.config.GracefulTimeout):
			logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", m.config.Name)
		}

		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
		}
	}

	<-done
	return nil
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning returns true if the process is currently running.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the last error that caused the process to exit.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns the restarts since the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// Uptime returns how long the process has been running, or 0.
func (m *Manager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startTime)
}

// PID returns the process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// HealthCheck reports an error unless the process is running.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s := m.Status(); s != StatusRunning {
		return fmt.Errorf("%s is %s", m.config.Name, s)
	}
	return nil
}

// Stats describes the managed process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
	}
	if m.status == StatusRunning {
		if m.cmd != nil && m.cmd.Process != nil {
			stats.PID = m.cmd.Process.Pid
		}
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
