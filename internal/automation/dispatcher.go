package automation

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nerrad567/puck-central/internal/capability"
)

// Logger defines the logging interface used by the dispatcher.
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

// Observer receives dispatch notifications.
//
// ActionExecuted and Dispatched follow Fire and only run when at least one
// rule matched. Signalled follows every Signal call, matched or not.
type Observer interface {
	ActionExecuted(fired Firing, outcome Outcome)
	Dispatched(result *DispatchResult)
	Signalled(result *DispatchResult)
}

// maxDispatchTime bounds one Fire call so a hung actuator cannot pile up
// goroutines.
const maxDispatchTime = 60 * time.Second

// Dispatcher routes fired triggers to the actions of matching rules.
//
// Thread Safety: all methods are safe for concurrent use.
type Dispatcher struct {
	repo      Repository
	actuators ActuatorCatalogue
	logger    Logger

	mu        sync.RWMutex
	observers []Observer
}

// NewDispatcher creates a dispatcher.
//
// Parameters:
//   - repo: rule and action store
//   - actuators: catalogue resolving action kinds to actuators
//   - logger: may be nil
func NewDispatcher(repo Repository, actuators ActuatorCatalogue, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{repo: repo, actuators: actuators, logger: logger}
}

// AddObserver registers o for dispatch notifications.
func (d *Dispatcher) AddObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Fire runs every action bound to (puckID, trigger).
//
// Zero matching rules is not an error: the result has no outcomes and no
// actuator is invoked. Rules run concurrently; actions within a rule run in
// sort order. A failing action is recorded as an *ExecutionError in its
// Outcome and does not stop the actions after it.
//
// Returns an error only when the rules cannot be loaded.
func (d *Dispatcher) Fire(ctx context.Context, puckID string, trigger capability.Trigger) (*DispatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, maxDispatchTime)
	defer cancel()

	started := time.Now()
	result := &DispatchResult{
		PuckID:    puckID,
		Trigger:   trigger,
		Outcomes:  []Outcome{},
		StartedAt: started.UTC(),
	}

	rules, err := d.repo.FindRules(ctx, puckID, trigger)
	if err != nil {
		return nil, fmt.Errorf("finding rules for %s/%s: %w", puckID, trigger, err)
	}
	result.Rules = len(rules)
	if len(rules) == 0 {
		d.logger.Debug("trigger unresolved", "puck_id", puckID, "trigger", string(trigger))
		result.Duration = time.Since(started)
		return result, nil
	}

	observers := d.snapshotObservers()

	perRule := make([][]Outcome, len(rules))
	var wg sync.WaitGroup
	for i := range rules {
		wg.Add(1)
		go func(idx int, rule Rule) {
			defer wg.Done()
			perRule[idx] = d.runRule(ctx, rule, observers)
		}(i, rules[i])
	}
	wg.Wait()

	for _, outcomes := range perRule {
		result.Outcomes = append(result.Outcomes, outcomes...)
	}
	result.Duration = time.Since(started)

	failed := len(result.Outcomes) - result.Succeeded()
	logArgs := []any{
		"puck_id", puckID,
		"trigger", string(trigger),
		"rules", result.Rules,
		"actions", len(result.Outcomes),
		"failed", failed,
		"duration_ms", result.Duration.Milliseconds(),
	}
	if failed > 0 {
		d.logger.Warn("trigger dispatched with failures", logArgs...)
	} else {
		d.logger.Info("trigger dispatched", logArgs...)
	}

	for _, o := range observers {
		o.Dispatched(result)
	}
	return result, nil
}

// Signal handles a trigger signal from a puck: it runs Fire and then tells
// every observer about the signal, including signals no rule is bound to.
// Runtime sources (gestures, beacons, manual fires) come in here; Fire is
// the side-effect free dispatch underneath.
func (d *Dispatcher) Signal(ctx context.Context, puckID string, trigger capability.Trigger) (*DispatchResult, error) {
	result, err := d.Fire(ctx, puckID, trigger)
	if err != nil {
		return nil, err
	}
	for _, o := range d.snapshotObservers() {
		o.Signalled(result)
	}
	return result, nil
}

// runRule executes one rule's actions in order.
func (d *Dispatcher) runRule(ctx context.Context, rule Rule, observers []Observer) []Outcome {
	fired := Firing{PuckID: rule.PuckID, Trigger: rule.Trigger, RuleID: rule.ID}
	outcomes := make([]Outcome, 0, len(rule.Actions))

	for _, action := range rule.Actions {
		started := time.Now()
		err := d.execute(ctx, fired, action)

		outcome := Outcome{
			RuleID:   rule.ID,
			ActionID: action.ID,
			Actuator: action.Actuator,
			Duration: time.Since(started),
		}
		if err != nil {
			outcome.Err = &ExecutionError{
				RuleID:   rule.ID,
				ActionID: action.ID,
				Actuator: action.Actuator,
				Err:      err,
			}
			outcome.Error = err.Error()
			d.logger.Warn("action failed",
				"rule_id", rule.ID,
				"action_id", action.ID,
				"actuator", string(action.Actuator),
				"error", err,
			)
		}
		outcomes = append(outcomes, outcome)

		for _, o := range observers {
			o.ActionExecuted(fired, outcome)
		}
	}
	return outcomes
}

// execute runs one action, converting a panic into an error.
func (d *Dispatcher) execute(ctx context.Context, fired Firing, action Action) (err error) {
	act, ok := d.actuators.Lookup(action.Actuator)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownActuator, action.Actuator)
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("actuator panicked",
				"actuator", string(action.Actuator),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("actuator panic: %v", r)
		}
	}()

	return act.Execute(ctx, fired, action.DeepCopy())
}

// Bind stores action under rule. A pending rule is reconciled against any
// persisted rule for the same (puck, trigger) so that repeated setup flows
// extend one rule instead of creating duplicates.
func (d *Dispatcher) Bind(ctx context.Context, rule *Rule, action Action) (*Rule, error) {
	if _, ok := d.actuators.Lookup(action.Actuator); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActuator, action.Actuator)
	}

	pending := rule.DeepCopy()
	pending.Actions = []Action{action}

	stored, err := d.repo.CreateOrExtend(ctx, pending)
	if err != nil {
		return nil, err
	}

	d.logger.Info("action bound",
		"rule_id", stored.ID,
		"puck_id", stored.PuckID,
		"trigger", string(stored.Trigger),
		"actuator", string(action.Actuator),
		"actions", len(stored.Actions),
	)
	return stored, nil
}

// Configure runs the actuator's configuration step for kind and binds the
// resulting action to rule.
//
// Returns:
//   - the stored rule on success
//   - ErrUnknownActuator if kind is not in the catalogue
//   - the actuator's error if configuration failed (nothing is stored)
//   - ErrConfigurationIncomplete if the actuator produced no action
func (d *Dispatcher) Configure(ctx context.Context, rule *Rule, kind ActuatorKind, params map[string]any) (*Rule, error) {
	act, ok := d.actuators.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActuator, kind)
	}

	var (
		stored   *Rule
		bindErr  error
		complete bool
	)
	onComplete := func(action Action, r *Rule) {
		if complete {
			return
		}
		complete = true
		stored, bindErr = d.Bind(ctx, r, action)
	}

	initial := Action{Actuator: kind, Config: map[string]any{}}
	if err := act.BuildConfiguration(ctx, initial, rule.DeepCopy(), params, onComplete); err != nil {
		return nil, fmt.Errorf("configuring %s: %w", kind, err)
	}
	if !complete {
		return nil, ErrConfigurationIncomplete
	}
	return stored, bindErr
}

// Rules returns the rules of one puck.
func (d *Dispatcher) Rules(ctx context.Context, puckID string) ([]Rule, error) {
	return d.repo.ListByPuck(ctx, puckID)
}

// Rule returns one rule.
func (d *Dispatcher) Rule(ctx context.Context, id string) (*Rule, error) {
	return d.repo.GetRule(ctx, id)
}

// RemoveRule deletes a rule and its actions.
func (d *Dispatcher) RemoveRule(ctx context.Context, id string) error {
	if err := d.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	d.logger.Info("rule removed", "rule_id", id)
	return nil
}

func (d *Dispatcher) snapshotObservers() []Observer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.observers
}
