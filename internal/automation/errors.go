package automation

import (
	"errors"
	"fmt"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rule: not found")

	// ErrInvalidRule is returned when a rule is missing its puck or trigger.
	ErrInvalidRule = errors.New("rule: invalid")

	// ErrUnknownTrigger is returned for a trigger name no service offers.
	ErrUnknownTrigger = errors.New("rule: unknown trigger")

	// ErrNoActions is returned when persisting a rule without actions.
	ErrNoActions = errors.New("rule: no actions")

	// ErrInvalidAction is returned when an action has no actuator kind.
	ErrInvalidAction = errors.New("rule: invalid action")

	// ErrUnknownPuck is returned when a rule references a puck that does not exist.
	ErrUnknownPuck = errors.New("rule: unknown puck")

	// ErrUnknownActuator is returned when no actuator handles an action's kind.
	ErrUnknownActuator = errors.New("actuator: unknown kind")

	// ErrActuatorFailed is wrapped by every ExecutionError.
	ErrActuatorFailed = errors.New("actuator: execution failed")

	// ErrConfigurationIncomplete is returned when an actuator's configuration
	// step returns without producing an action.
	ErrConfigurationIncomplete = errors.New("actuator: configuration incomplete")
)

// ExecutionError records one action that failed during a Fire call.
type ExecutionError struct {
	RuleID   string
	ActionID string
	Actuator ActuatorKind
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("action %s (%s) of rule %s: %v", e.ActionID, e.Actuator, e.RuleID, e.Err)
}

// Unwrap exposes both ErrActuatorFailed and the underlying cause.
func (e *ExecutionError) Unwrap() []error {
	return []error{ErrActuatorFailed, e.Err}
}
