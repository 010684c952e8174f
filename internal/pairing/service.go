package pairing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/puck-central/internal/automation"
	"github.com/nerrad567/puck-central/internal/capability"
	"github.com/nerrad567/puck-central/internal/discovery"
	"github.com/nerrad567/puck-central/internal/puck"
)

// Logger defines the logging interface used by the pairing service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// PuckStore is what pairing needs from the puck registry.
type PuckStore interface {
	FindByBeaconIdentity(ctx context.Context, beacon puck.BeaconIdentity) (*puck.Puck, error)
	Create(ctx context.Context, in puck.NewPuck) (*puck.Puck, error)
}

// DiscoveryRequester admits discovery sessions.
type DiscoveryRequester interface {
	RequestDiscovery(address string) (discovery.Admission, error)
}

// TriggerFirer signals a trigger and runs the rules bound to it.
type TriggerFirer interface {
	Signal(ctx context.Context, puckID string, trigger capability.Trigger) (*automation.DispatchResult, error)
}

// Observer is told the outcome of every handled sighting.
type Observer interface {
	SightingHandled(s Sighting, outcome Outcome)
}

// Config holds pairing settings.
type Config struct {
	AutoPair     bool
	CandidateTTL time.Duration
}

const defaultCandidateTTL = 10 * time.Minute

// Service handles beacon sightings and candidate acceptance.
//
// Thread Safety: all methods are safe for concurrent use.
type Service struct {
	pucks     PuckStore
	discovery DiscoveryRequester
	triggers  TriggerFirer
	cfg       Config
	now       func() time.Time

	mu         sync.Mutex
	candidates map[string]*Candidate
	observers  []Observer
	logger     Logger
}

// NewService creates a pairing service.
func NewService(pucks PuckStore, disc DiscoveryRequester, triggers TriggerFirer, cfg Config) *Service {
	if cfg.CandidateTTL <= 0 {
		cfg.CandidateTTL = defaultCandidateTTL
	}
	return &Service{
		pucks:      pucks,
		discovery:  disc,
		triggers:   triggers,
		cfg:        cfg,
		now:        time.Now,
		candidates: make(map[string]*Candidate),
		logger:     noopLogger{},
	}
}

// SetLogger sets the service logger.
func (s *Service) SetLogger(logger Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// AddObserver registers o for sighting outcomes.
func (s *Service) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// HandleSighting routes one beacon transition.
func (s *Service) HandleSighting(ctx context.Context, sighting Sighting) (Outcome, error) {
	beacon, err := sighting.Beacon.Normalize()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidSighting, err)
	}
	address, err := puck.NormalizeAddress(sighting.Address)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidSighting, err)
	}
	sighting.Beacon, sighting.Address = beacon, address
	if sighting.SeenAt.IsZero() {
		sighting.SeenAt = s.now()
	}

	var outcome Outcome
	switch sighting.Transition {
	case TransitionEntered:
		outcome, err = s.zoneEntered(ctx, sighting)
	case TransitionExited:
		outcome, err = s.zoneExited(ctx, sighting)
	default:
		return 0, fmt.Errorf("%w: transition %q", ErrInvalidSighting, sighting.Transition)
	}
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	observers := s.observers
	s.mu.Unlock()
	for _, o := range observers {
		o.SightingHandled(sighting, outcome)
	}
	return outcome, nil
}

func (s *Service) zoneEntered(ctx context.Context, sighting Sighting) (Outcome, error) {
	p, err := s.pucks.FindByBeaconIdentity(ctx, sighting.Beacon)
	switch {
	case err == nil:
		s.fire(ctx, p.ID, capability.EnterZone)
		return OutcomeAlreadyPaired, nil
	case !errors.Is(err, puck.ErrPuckNotFound):
		return 0, fmt.Errorf("looking up beacon %s: %w", sighting.Beacon, err)
	}

	if s.cfg.AutoPair {
		if _, err := s.pair(ctx, sighting.Address, sighting.Beacon, ""); err != nil {
			return 0, err
		}
		return OutcomePaired, nil
	}

	s.mu.Lock()
	c, ok := s.candidates[sighting.Address]
	if !ok {
		c = &Candidate{Address: sighting.Address, FirstSeen: sighting.SeenAt}
		s.candidates[sighting.Address] = c
	}
	c.Beacon = sighting.Beacon
	c.RSSI = sighting.RSSI
	c.LastSeen = sighting.SeenAt
	logger := s.logger
	s.mu.Unlock()

	if !ok {
		logger.Info("pairing candidate found", "address", sighting.Address, "beacon", sighting.Beacon.String())
	}
	return OutcomeCandidate, nil
}

func (s *Service) zoneExited(ctx context.Context, sighting Sighting) (Outcome, error) {
	p, err := s.pucks.FindByBeaconIdentity(ctx, sighting.Beacon)
	switch {
	case err == nil:
		s.fire(ctx, p.ID, capability.ExitZone)
		return OutcomeExited, nil
	case errors.Is(err, puck.ErrPuckNotFound):
		return OutcomeIgnored, nil
	default:
		return 0, fmt.Errorf("looking up beacon %s: %w", sighting.Beacon, err)
	}
}

// fire dispatches a zone trigger. Dispatch problems are logged, not
// returned: the sighting itself was handled.
func (s *Service) fire(ctx context.Context, puckID string, trigger capability.Trigger) {
	if s.triggers == nil {
		return
	}
	if _, err := s.triggers.Signal(ctx, puckID, trigger); err != nil {
		s.log().Warn("zone trigger dispatch failed", "puck_id", puckID, "trigger", string(trigger), "error", err)
	}
}

// Accept pairs a held candidate, optionally naming the puck, and requests
// service discovery for it.
func (s *Service) Accept(ctx context.Context, address, name string) (*puck.Puck, error) {
	addr, err := puck.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pruneLocked()
	c, ok := s.candidates[addr]
	s.mu.Unlock()
	if !ok {
		return nil, ErrCandidateNotFound
	}

	p, err := s.pair(ctx, addr, c.Beacon, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.candidates, addr)
	s.mu.Unlock()
	return p, nil
}

// pair creates the puck and requests discovery for it.
func (s *Service) pair(ctx context.Context, address string, beacon puck.BeaconIdentity, name string) (*puck.Puck, error) {
	p, err := s.pucks.Create(ctx, puck.NewPuck{Name: name, Beacon: beacon, Address: address})
	if err != nil {
		if errors.Is(err, puck.ErrPuckExists) {
			return nil, ErrAlreadyPaired
		}
		return nil, fmt.Errorf("creating puck: %w", err)
	}

	logger := s.log()
	logger.Info("puck paired", "puck_id", p.ID, "address", p.Address, "name", p.Name)

	if s.discovery != nil {
		if _, err := s.discovery.RequestDiscovery(p.Address); err != nil {
			logger.Warn("discovery request after pairing failed", "address", p.Address, "error", err)
		}
	}
	return p, nil
}

// Dismiss forgets a candidate.
func (s *Service) Dismiss(address string) error {
	addr, err := puck.NormalizeAddress(address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[addr]; !ok {
		return ErrCandidateNotFound
	}
	delete(s.candidates, addr)
	return nil
}

// Candidates returns live candidates, most recently seen first.
func (s *Service) Candidates() []Candidate {
	s.mu.Lock()
	s.pruneLocked()
	out := make([]Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		out = append(out, *c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// pruneLocked drops candidates not seen within the TTL. Caller holds mu.
func (s *Service) pruneLocked() {
	cutoff := s.now().Add(-s.cfg.CandidateTTL)
	for addr, c := range s.candidates {
		if c.LastSeen.Before(cutoff) {
			delete(s.candidates, addr)
		}
	}
}

func (s *Service) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}
