package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/puck-central/internal/puck"
)

// PuckLister provides the pucks to refresh.
type PuckLister interface {
	List(ctx context.Context) ([]puck.Puck, error)
}

// Requester admits discovery sessions. *Coordinator implements it.
type Requester interface {
	RequestDiscovery(address string) (Admission, error)
}

// RefreshReport counts the admissions of one sweep.
type RefreshReport struct {
	Started   int `json:"started"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
}

// Refresher requests discovery for every registered puck on a cron schedule.
type Refresher struct {
	pucks     PuckLister
	requester Requester
	schedule  string
	cron      *cron.Cron
	logger    Logger

	mu      sync.Mutex
	ctx     context.Context //nolint:containedctx // cancelled by Stop
	cancel  context.CancelFunc
	started bool
}

// NewRefresher validates schedule (six fields, seconds first, or a
// descriptor such as "@hourly") and returns a stopped refresher.
func NewRefresher(pucks PuckLister, requester Requester, schedule string) (*Refresher, error) {
	r := &Refresher{
		pucks:     pucks,
		requester: requester,
		schedule:  schedule,
		cron:      cron.New(cron.WithSeconds()),
		logger:    noopLogger{},
	}
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, schedule, err)
	}
	return r, nil
}

// SetLogger sets the refresher logger.
func (r *Refresher) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Start begins running the schedule.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.cron.Start()
	r.started = true
	r.logger.Info("capability refresh scheduled", "schedule", r.schedule)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.started = false
	r.mu.Unlock()

	// tick takes mu, so wait outside it.
	<-r.cron.Stop().Done()
}

func (r *Refresher) tick() {
	r.mu.Lock()
	ctx := r.ctx
	logger := r.logger
	r.mu.Unlock()
	if ctx == nil {
		return
	}

	report, err := r.RefreshNow(ctx)
	if err != nil {
		logger.Error("capability refresh failed", "error", err)
		return
	}
	logger.Info("capability refresh",
		"started", report.Started,
		"duplicate", report.Duplicate,
		"failed", report.Failed,
	)
}

// RefreshNow requests discovery for every puck immediately.
func (r *Refresher) RefreshNow(ctx context.Context) (RefreshReport, error) {
	var report RefreshReport
	r.mu.Lock()
	logger := r.logger
	r.mu.Unlock()

	pucks, err := r.pucks.List(ctx)
	if err != nil {
		return report, fmt.Errorf("listing pucks: %w", err)
	}

	for _, p := range pucks {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		admission, reqErr := r.requester.RequestDiscovery(p.Address)
		switch {
		case reqErr != nil:
			report.Failed++
			logger.Warn("refresh request rejected", "puck_id", p.ID, "address", p.Address, "error", reqErr)
		case admission == AdmissionDuplicate:
			report.Duplicate++
		default:
			report.Started++
		}
	}
	return report, nil
}
