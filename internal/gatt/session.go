package gatt

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/puck-central/internal/puck"
)

// Logger defines the logging interface used by sessions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Option configures a Session.
type Option func(*Session)

// WithTimeout aborts the session with ErrSessionTimeout if it has not
// finished within d. Zero (the default) waits indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithLogger sets the session logger.
func WithLogger(l Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTransitionHook registers fn to be called on every state change, from
// the session goroutine.
func WithTransitionHook(fn func(address string, from, to State)) Option {
	return func(s *Session) { s.onTransition = fn }
}

// Session is one connect / discover / disconnect cycle against one device.
// A Session is single-use: call Run once.
type Session struct {
	address   string
	transport Transport
	store     CapabilityStore
	timeout   time.Duration
	logger    Logger

	onTransition func(address string, from, to State)

	mu    sync.RWMutex
	state State

	services []puck.ServiceID
}

// NewSession creates an idle session for address.
func NewSession(address string, transport Transport, store CapabilityStore, opts ...Option) *Session {
	s := &Session{
		address:   address,
		transport: transport,
		store:     store,
		logger:    noopLogger{},
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Address returns the device address.
func (s *Session) Address() string {
	return s.address
}

// State returns the current state. Safe to call from any goroutine.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run drives the session to Closed or Error and returns the outcome.
// Cancelling ctx ends the session in Error with ctx's error.
func (s *Session) Run(ctx context.Context) Result {
	res := Result{Address: s.address, StartedAt: time.Now()}
	finish := func(err error) Result {
		res.State = s.State()
		res.Err = err
		res.Services = slices.Clone(s.services)
		res.EndedAt = time.Now()
		return res
	}

	if s.State() != StateIdle {
		return finish(fmt.Errorf("gatt: session for %s already run", s.address))
	}

	s.transition(StateConnecting)
	link, err := s.transport.Connect(ctx, s.address)
	if err != nil {
		s.transition(StateError)
		return finish(fmt.Errorf("connecting to %s: %w", s.address, err))
	}

	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	events := link.Events()
	for {
		select {
		case <-ctx.Done():
			return finish(s.abort(link, ctx.Err()))
		case <-timeout:
			return finish(s.abort(link, ErrSessionTimeout))
		case ev, ok := <-events:
			if !ok {
				return finish(s.abort(link, ErrLinkClosed))
			}
			if done, err := s.apply(ctx, link, ev); done {
				return finish(err)
			}
		}
	}
}

// apply handles one event. done is true once the session reached a
// terminal state.
func (s *Session) apply(ctx context.Context, link Link, ev Event) (done bool, err error) {
	state := s.State()

	switch e := ev.(type) {
	case ConnectionFailed:
		return true, s.abort(link, &TransportError{Status: e.Status})

	case ConnectionEstablished:
		if state != StateConnecting {
			break
		}
		s.transition(StateConnected)
		if err := link.DiscoverServices(); err != nil {
			return true, s.abort(link, fmt.Errorf("requesting service discovery: %w", err))
		}
		s.transition(StateDiscoveringServices)
		return false, nil

	case ServicesDiscovered:
		if state != StateDiscoveringServices {
			break
		}
		for _, id := range e.Services {
			if !slices.Contains(s.services, id) {
				s.services = append(s.services, id)
			}
		}
		if err := s.store.UpsertCapabilities(ctx, s.address, s.services); err != nil {
			return true, s.abort(link, fmt.Errorf("storing capabilities: %w", err))
		}
		s.transition(StateDisconnecting)
		if err := link.Disconnect(); err != nil {
			return true, s.abort(link, fmt.Errorf("requesting disconnect: %w", err))
		}
		return false, nil

	case Disconnected:
		if state != StateDisconnecting {
			return true, s.abort(link, ErrUnexpectedDisconnect)
		}
		s.transition(StateClosed)
		s.release(link)
		return true, nil
	}

	s.logger.Debug("gatt event ignored",
		"address", s.address,
		"state", state.String(),
		"event", fmt.Sprintf("%T", ev),
	)
	return false, nil
}

// abort moves the session to Error and releases the link.
func (s *Session) abort(link Link, err error) error {
	s.transition(StateError)
	s.release(link)
	s.logger.Warn("gatt session failed", "address", s.address, "error", err)
	return err
}

func (s *Session) release(link Link) {
	if err := link.Close(); err != nil {
		s.logger.Debug("closing gatt link", "address", s.address, "error", err)
	}
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	s.logger.Debug("gatt state", "address", s.address, "from", from.String(), "to", to.String())
	if s.onTransition != nil {
		s.onTransition(s.address, from, to)
	}
}
