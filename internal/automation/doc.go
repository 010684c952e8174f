// Package automation binds puck triggers to actuator actions and runs them.
//
// A Rule ties one puck and one trigger to an ordered list of Actions. When a
// trigger fires, the Dispatcher loads every rule for (puck, trigger) and runs
// each rule's actions in order through the actuator catalogue.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                Dispatcher (dispatcher.go)                │
//	│                                                          │
//	│  Fire(puck, trigger)                                     │
//	│    1. FindRules          ──▶ Repository (repository.go)  │
//	│    2. zero rules: empty result, nothing runs             │
//	│    3. one goroutine per rule, WaitGroup                  │
//	│    4. actions in sort order ──▶ ActuatorCatalogue        │
//	│    5. per-action outcome, failures isolated              │
//	│                                                          │
//	│  Bind(rule, action)                                      │
//	│    pending rule ──▶ CreateOrExtend (one transaction):    │
//	│      existing (puck, trigger) rule? append : insert      │
//	└─────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Rule: (puck, trigger) with ordered actions; empty ID means pending
//   - Action: actuator kind plus opaque configuration
//   - Actuator: configures and executes one kind of action
//   - DispatchResult: per-action outcomes of one Fire call
//   - ExecutionError: one failed action, wraps ErrActuatorFailed
//
// # Thread Safety
//
// Dispatcher is safe for concurrent use. Actuators must be too, since rules
// for the same trigger run in parallel.
//
// # Usage
//
//	repo := automation.NewSQLiteRepository(db)
//	dispatcher := automation.NewDispatcher(repo, catalogue, log)
//
//	rule := automation.NewRule(puckID, capability.EnterZone)
//	rule, err := dispatcher.Configure(ctx, rule, "notify", map[string]any{"message": "hello"})
//
//	result, err := dispatcher.Fire(ctx, puckID, capability.EnterZone)
package automation
