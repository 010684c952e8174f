package puck

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Registry.
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

// NewPuck holds the caller-supplied fields for Create.
type NewPuck struct {
	Name    string
	Beacon  BeaconIdentity
	Address string
}

// Registry provides puck lookups with an in-memory cache in front of a
// Repository. Returned pucks are deep copies; callers may modify them.
//
// All public methods are thread-safe.
type Registry struct {
	repo Repository

	cache   map[string]*Puck // by ID
	byAddr  map[string]string
	cacheMu sync.RWMutex

	// writeMu serialises mutations so a capability union never races a
	// rename or delete of the same puck.
	writeMu sync.Mutex

	logger Logger
}

// NewRegistry creates a registry over repo. Call RefreshCache at startup.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Puck),
		byAddr: make(map[string]string),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads every puck from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	pucks, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading pucks: %w", err)
	}

	r.cacheMu.Lock()
	r.cache = make(map[string]*Puck, len(pucks))
	r.byAddr = make(map[string]string, len(pucks))
	for i := range pucks {
		r.storeLocked(&pucks[i])
	}
	r.cacheMu.Unlock()

	r.logger.Info("puck cache refreshed", "count", len(pucks))
	return nil
}

// Get retrieves a puck by ID.
func (r *Registry) Get(ctx context.Context, id string) (*Puck, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	p, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(p)
	return p, nil
}

// GetByAddress retrieves a puck by MAC address in any accepted notation.
func (r *Registry) GetByAddress(ctx context.Context, address string) (*Puck, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	id, ok := r.byAddr[addr]
	cached := r.cache[id]
	r.cacheMu.RUnlock()
	if ok && cached != nil {
		return cached.DeepCopy(), nil
	}

	p, err := r.repo.GetByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	r.store(p)
	return p, nil
}

// FindByBeaconIdentity returns the puck advertising the given iBeacon triple.
// This is the "already paired" check made when a beacon enters range.
func (r *Registry) FindByBeaconIdentity(ctx context.Context, beacon BeaconIdentity) (*Puck, error) {
	b, err := beacon.Normalize()
	if err != nil {
		return nil, err
	}

	r.cacheMu.RLock()
	for _, p := range r.cache {
		if p.Identity() == b {
			cpy := p.DeepCopy()
			r.cacheMu.RUnlock()
			return cpy, nil
		}
	}
	r.cacheMu.RUnlock()

	p, err := r.repo.GetByBeacon(ctx, b)
	if err != nil {
		return nil, err
	}
	r.store(p)
	return p, nil
}

// List returns every puck ordered by name, then creation time.
func (r *Registry) List(ctx context.Context) ([]Puck, error) {
	r.cacheMu.RLock()
	populated := len(r.cache) > 0
	pucks := make([]Puck, 0, len(r.cache))
	for _, p := range r.cache {
		pucks = append(pucks, *p.DeepCopy())
	}
	r.cacheMu.RUnlock()

	if !populated {
		return r.repo.List(ctx)
	}

	slices.SortFunc(pucks, func(a, b Puck) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return pucks, nil
}

// Create pairs a new puck. It starts with the location service as its only
// capability, because every puck is reachable as a beacon; discovery adds
// the rest.
func (r *Registry) Create(ctx context.Context, in NewPuck) (*Puck, error) {
	addr, err := NormalizeAddress(in.Address)
	if err != nil {
		return nil, err
	}
	beacon, err := in.Beacon.Normalize()
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if len(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	if name == "" {
		name = fmt.Sprintf("Puck %d", beacon.Minor)
	}

	p := &Puck{
		ID:                  GenerateID(),
		Name:                name,
		Minor:               beacon.Minor,
		Major:               beacon.Major,
		ProximityUUID:       beacon.ProximityUUID,
		Address:             addr,
		ServiceCapabilities: []ServiceID{LocationService},
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	r.store(p)

	r.logger.Info("puck created", "puck_id", p.ID, "address", p.Address, "beacon", beacon.String())
	return p.DeepCopy(), nil
}

// Rename changes a puck's display name.
func (r *Registry) Rename(ctx context.Context, id, name string) (*Puck, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, MaxNameLength)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	p, err := r.repo.Rename(ctx, id, name)
	if err != nil {
		return nil, err
	}
	r.store(p)
	return p.DeepCopy(), nil
}

// UpsertCapabilities unions services into the capability set of the puck at
// address. Duplicates are ignored; existing entries are never removed.
// Returns ErrPuckNotFound when no puck has that address.
func (r *Registry) UpsertCapabilities(ctx context.Context, address string, services []ServiceID) error {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	p, err := r.repo.UnionServices(ctx, addr, services)
	if err != nil {
		return fmt.Errorf("updating capabilities for %s: %w", addr, err)
	}
	r.store(p)

	r.logger.Debug("capabilities updated", "puck_id", p.ID, "address", addr, "services", len(p.ServiceCapabilities))
	return nil
}

// Delete unpairs a puck. Its rules are removed with it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if p, ok := r.cache[id]; ok {
		delete(r.byAddr, p.Address)
		delete(r.cache, id)
	}
	r.cacheMu.Unlock()

	r.logger.Info("puck deleted", "puck_id", id)
	return nil
}

// Count returns the number of cached pucks.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func (r *Registry) store(p *Puck) {
	r.cacheMu.Lock()
	r.storeLocked(p)
	r.cacheMu.Unlock()
}

func (r *Registry) storeLocked(p *Puck) {
	r.cache[p.ID] = p.DeepCopy()
	r.byAddr[p.Address] = p.ID
}
