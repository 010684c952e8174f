package automation

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/puck-central/internal/capability"
)

// ActuatorKind names an actuator implementation.
type ActuatorKind string

// Rule binds a puck trigger to an ordered list of actions.
// A rule with an empty ID has not been persisted yet.
type Rule struct {
	ID        string             `json:"id,omitempty"`
	PuckID    string             `json:"puck_id"`
	Trigger   capability.Trigger `json:"trigger"`
	Actions   []Action           `json:"actions"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewRule returns a pending rule.
func NewRule(puckID string, trigger capability.Trigger) *Rule {
	return &Rule{PuckID: puckID, Trigger: trigger, Actions: []Action{}}
}

// Pending reports whether the rule has no persisted identity.
func (r *Rule) Pending() bool {
	return r.ID == ""
}

// DeepCopy returns a copy sharing no mutable state with r.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Actions = make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		cp.Actions[i] = a.DeepCopy()
	}
	return &cp
}

// Action is one actuator invocation owned by a rule.
type Action struct {
	ID        string         `json:"id,omitempty"`
	RuleID    string         `json:"rule_id,omitempty"`
	Actuator  ActuatorKind   `json:"actuator"`
	Config    map[string]any `json:"config"`
	SortOrder int            `json:"sort_order"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeepCopy copies the action. Config is cloned one level deep.
func (a Action) DeepCopy() Action {
	if a.Config != nil {
		a.Config = maps.Clone(a.Config)
	}
	return a
}

// Firing identifies the trigger an action runs for.
type Firing struct {
	PuckID  string
	Trigger capability.Trigger
	RuleID  string
}

// Actuator configures and executes one kind of action.
type Actuator interface {
	Kind() ActuatorKind

	// Describe is a one-line label for selection lists.
	Describe() string

	// BuildConfiguration turns initial plus params into a fully populated
	// action and passes it to onComplete exactly once. It does not call
	// onComplete when it returns an error or ctx is cancelled.
	BuildConfiguration(ctx context.Context, initial Action, rule *Rule, params map[string]any, onComplete func(Action, *Rule)) error

	// Execute performs the action's effect.
	Execute(ctx context.Context, fired Firing, action Action) error
}

// ActuatorCatalogue looks up actuators by kind.
type ActuatorCatalogue interface {
	Lookup(kind ActuatorKind) (Actuator, bool)
}

// Outcome is the result of one action during a Fire call.
type Outcome struct {
	RuleID   string        `json:"rule_id"`
	ActionID string        `json:"action_id"`
	Actuator ActuatorKind  `json:"actuator"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`

	// Err is an *ExecutionError when the action failed.
	Err error `json:"-"`
}

// Succeeded reports whether the action ran without error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// DispatchResult aggregates the outcomes of one Fire call. Outcomes are
// ordered by rule, then by action sort order.
type DispatchResult struct {
	PuckID    string             `json:"puck_id"`
	Trigger   capability.Trigger `json:"trigger"`
	Rules     int                `json:"rules"`
	Outcomes  []Outcome          `json:"outcomes"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration_ns"`
}

// Resolved reports whether any rule matched.
func (r *DispatchResult) Resolved() bool {
	return r.Rules > 0
}

// Succeeded counts successful actions.
func (r *DispatchResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// Failures returns the failed actions as ExecutionErrors.
func (r *DispatchResult) Failures() []*ExecutionError {
	var out []*ExecutionError
	for _, o := range r.Outcomes {
		var ee *ExecutionError
		if errors.As(o.Err, &ee) {
			out = append(out, ee)
		}
	}
	return out
}

// GenerateID creates a new unique ID for a rule or action.
func GenerateID() string {
	return uuid.NewString()
}
