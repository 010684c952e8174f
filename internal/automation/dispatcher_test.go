package automation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/puck-central/internal/capability"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// mockActuator records executions and fails or panics on request.
type mockActuator struct {
	kind     ActuatorKind
	failWith error
	panics   bool
	noResult bool

	mu    sync.Mutex
	calls []Action
}

func (m *mockActuator) Kind() ActuatorKind { return m.kind }
func (m *mockActuator) Describe() string   { return "mock " + string(m.kind) }

func (m *mockActuator) BuildConfiguration(ctx context.Context, initial Action, rule *Rule, params map[string]any, onComplete func(Action, *Rule)) error {
	if m.failWith != nil {
		return m.failWith
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.noResult {
		return nil
	}
	for k, v := range params {
		initial.Config[k] = v
	}
	onComplete(initial, rule)
	return nil
}

func (m *mockActuator) Execute(_ context.Context, _ Firing, action Action) error {
	m.mu.Lock()
	m.calls = append(m.calls, action)
	m.mu.Unlock()
	if m.panics {
		panic("boom")
	}
	return m.failWith
}

func (m *mockActuator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockCatalogue maps kinds to actuators.
type mockCatalogue map[ActuatorKind]Actuator

func (c mockCatalogue) Lookup(kind ActuatorKind) (Actuator, bool) {
	a, ok := c[kind]
	return a, ok
}

// staticRepo serves a fixed rule set for FindRules.
type staticRepo struct {
	Repository
	rules []Rule
	err   error
}

func (s staticRepo) FindRules(context.Context, string, capability.Trigger) ([]Rule, error) {
	return s.rules, s.err
}

// recordingObserver captures dispatch notifications.
type recordingObserver struct {
	mu         sync.Mutex
	results    []*DispatchResult
	signals    []*DispatchResult
	executions int
}

func (o *recordingObserver) ActionExecuted(Firing, Outcome) {
	o.mu.Lock()
	o.executions++
	o.mu.Unlock()
}

func (o *recordingObserver) Dispatched(r *DispatchResult) {
	o.mu.Lock()
	o.results = append(o.results, r)
	o.mu.Unlock()
}

func (o *recordingObserver) Signalled(r *DispatchResult) {
	o.mu.Lock()
	o.signals = append(o.signals, r)
	o.mu.Unlock()
}

func rule(id string, actions ...Action) Rule {
	for i := range actions {
		actions[i].RuleID = id
		actions[i].SortOrder = i
	}
	return Rule{ID: id, PuckID: "puck-1", Trigger: capability.EnterZone, Actions: actions}
}

// ─── Fire ───────────────────────────────────────────────────────────────────

func TestFire_NoRulesIsNoOp(t *testing.T) {
	notify := &mockActuator{kind: "notify"}
	obs := &recordingObserver{}
	d := NewDispatcher(staticRepo{}, mockCatalogue{"notify": notify}, nil)
	d.AddObserver(obs)

	res, err := d.Fire(context.Background(), "puck-1", capability.EnterZone)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if res.Resolved() || len(res.Outcomes) != 0 {
		t.Errorf("result = %+v, want no rules and no outcomes", res)
	}
	if notify.count() != 0 || len(obs.results) != 0 || len(obs.signals) != 0 {
		t.Error("unresolved trigger must have no side effects")
	}
}

func TestFire_FailingRuleDoesNotAffectOther(t *testing.T) {
	boom := errors.New("relay offline")
	notify := &mockActuator{kind: "notify"}
	broken := &mockActuator{kind: "webhook", failWith: boom}

	repo := staticRepo{rules: []Rule{
		rule("r1", Action{ID: "a1", Actuator: "webhook"}),
		rule("r2", Action{ID: "a2", Actuator: "notify"}),
	}}
	d := NewDispatcher(repo, mockCatalogue{"notify": notify, "webhook": broken}, nil)

	res, err := d.Fire(context.Background(), "puck-1", capability.EnterZone)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if res.Rules != 2 || len(res.Outcomes) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Succeeded() != 1 {
		t.Errorf("Succeeded() = %d, want 1", res.Succeeded())
	}

	failures := res.Failures()
	if len(failures) != 1 {
		t.Fatalf("Failures() = %v, want one", failures)
	}
	if failures[0].RuleID != "r1" || failures[0].ActionID != "a1" {
		t.Errorf("failure = %+v", failures[0])
	}
	if !errors.Is(failures[0], ErrActuatorFailed) || !errors.Is(failures[0], boom) {
		t.Errorf("failure does not wrap ErrActuatorFailed and cause: %v", failures[0])
	}
	if notify.count() != 1 || broken.count() != 1 {
		t.Errorf("executions notify=%d webhook=%d, want 1 each", notify.count(), broken.count())
	}

	// Outcomes follow rule order regardless of completion order.
	if res.Outcomes[0].RuleID != "r1" || res.Outcomes[1].RuleID != "r2" {
		t.Errorf("outcome order = %s, %s", res.Outcomes[0].RuleID, res.Outcomes[1].RuleID)
	}
}

func TestFire_ActionsRunInOrderDespiteFailures(t *testing.T) {
	notify := &mockActuator{kind: "notify"}
	panicky := &mockActuator{kind: "publish", panics: true}

	repo := staticRepo{rules: []Rule{
		rule("r1",
			Action{ID: "a1", Actuator: "publish"},
			Action{ID: "a2", Actuator: "missing"},
			Action{ID: "a3", Actuator: "notify"},
		),
	}}
	d := NewDispatcher(repo, mockCatalogue{"notify": notify, "publish": panicky}, nil)

	res, err := d.Fire(context.Background(), "puck-1", capability.EnterZone)
	if err != nil {
		t.Fatal(err)
	}

	wantIDs := []string{"a1", "a2", "a3"}
	for i, o := range res.Outcomes {
		if o.ActionID != wantIDs[i] {
			t.Errorf("outcome %d = %s, want %s", i, o.ActionID, wantIDs[i])
		}
	}
	if res.Outcomes[0].Succeeded() {
		t.Error("panicking action should fail")
	}
	if !errors.Is(res.Outcomes[1].Err, ErrUnknownActuator) {
		t.Errorf("unknown actuator err = %v", res.Outcomes[1].Err)
	}
	if !res.Outcomes[2].Succeeded() || notify.count() != 1 {
		t.Error("action after failures should still run")
	}
	if res.Outcomes[1].Error == "" {
		t.Error("failed outcome should carry an error message")
	}
}

func TestFire_RepositoryError(t *testing.T) {
	boom := errors.New("db locked")
	d := NewDispatcher(staticRepo{err: boom}, mockCatalogue{}, nil)

	if _, err := d.Fire(context.Background(), "puck-1", capability.EnterZone); !errors.Is(err, boom) {
		t.Errorf("Fire() error = %v, want wrapped repository error", err)
	}
}

func TestFire_NotifiesObservers(t *testing.T) {
	obs := &recordingObserver{}
	repo := staticRepo{rules: []Rule{rule("r1", Action{ID: "a1", Actuator: "notify"}, Action{ID: "a2", Actuator: "notify"})}}
	d := NewDispatcher(repo, mockCatalogue{"notify": &mockActuator{kind: "notify"}}, nil)
	d.AddObserver(obs)

	if _, err := d.Fire(context.Background(), "puck-1", capability.EnterZone); err != nil {
		t.Fatal(err)
	}
	if obs.executions != 2 || len(obs.results) != 1 {
		t.Errorf("observer saw %d executions and %d results", obs.executions, len(obs.results))
	}
}

// ─── Bind / Configure ───────────────────────────────────────────────────────

func TestBind_ReconcilesPendingRules(t *testing.T) {
	repo, pucks := setupRepo(t, 1)
	d := NewDispatcher(repo, mockCatalogue{"notify": &mockActuator{kind: "notify"}}, nil)
	ctx := context.Background()

	first, err := d.Bind(ctx, NewRule(pucks[0], capability.EnterZone), notifyAction("one"))
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	second, err := d.Bind(ctx, NewRule(pucks[0], capability.EnterZone), notifyAction("two"))
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if second.ID != first.ID || len(second.Actions) != 2 {
		t.Errorf("second bind = %s with %d actions, want %s with 2", second.ID, len(second.Actions), first.ID)
	}

	if _, err := d.Bind(ctx, NewRule(pucks[0], capability.EnterZone), Action{Actuator: "carrier-pigeon"}); !errors.Is(err, ErrUnknownActuator) {
		t.Errorf("unknown kind error = %v", err)
	}
}

func TestConfigure(t *testing.T) {
	repo, pucks := setupRepo(t, 1)
	ctx := context.Background()

	catalogue := mockCatalogue{
		"notify":  &mockActuator{kind: "notify"},
		"webhook": &mockActuator{kind: "webhook", failWith: errors.New("url required")},
		"publish": &mockActuator{kind: "publish", noResult: true},
	}
	d := NewDispatcher(repo, catalogue, nil)

	stored, err := d.Configure(ctx, NewRule(pucks[0], capability.CubeUp), "notify", map[string]any{"message": "up"})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if len(stored.Actions) != 1 || stored.Actions[0].Config["message"] != "up" {
		t.Errorf("stored = %+v", stored)
	}

	if _, err := d.Configure(ctx, NewRule(pucks[0], capability.CubeDown), "webhook", nil); err == nil {
		t.Error("Configure() should surface the actuator's error")
	}
	if _, err := d.Configure(ctx, NewRule(pucks[0], capability.CubeDown), "publish", nil); !errors.Is(err, ErrConfigurationIncomplete) {
		t.Errorf("incomplete configuration error = %v", err)
	}
	if _, err := d.Configure(ctx, NewRule(pucks[0], capability.CubeDown), "smoke-signal", nil); !errors.Is(err, ErrUnknownActuator) {
		t.Errorf("unknown kind error = %v", err)
	}

	rules, err := d.Rules(ctx, pucks[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Errorf("Rules() = %d, want only the successfully configured rule", len(rules))
	}

	if err := d.RemoveRule(ctx, stored.ID); err != nil {
		t.Fatalf("RemoveRule() error = %v", err)
	}
	if _, err := d.Rule(ctx, stored.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Rule() after remove error = %v", err)
	}
}

// ─── Signal ─────────────────────────────────────────────────────────────────

func TestSignal_UnboundTriggerIsObserved(t *testing.T) {
	notify := &mockActuator{kind: "notify"}
	obs := &recordingObserver{}
	d := NewDispatcher(staticRepo{}, mockCatalogue{"notify": notify}, nil)
	d.AddObserver(obs)

	res, err := d.Signal(context.Background(), "puck-1", capability.CubeUp)
	if err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if res.Resolved() {
		t.Errorf("result = %+v, want unresolved", res)
	}
	if len(obs.signals) != 1 || obs.signals[0].Trigger != capability.CubeUp {
		t.Fatalf("signals = %+v, want one cube-up signal", obs.signals)
	}
	if len(obs.results) != 0 || notify.count() != 0 {
		t.Error("unbound signal must not dispatch")
	}
}

func TestSignal_BoundTriggerIsDispatchedAndObserved(t *testing.T) {
	notify := &mockActuator{kind: "notify"}
	obs := &recordingObserver{}
	repo := staticRepo{rules: []Rule{rule("r1", Action{ID: "a1", Actuator: "notify"})}}
	d := NewDispatcher(repo, mockCatalogue{"notify": notify}, nil)
	d.AddObserver(obs)

	if _, err := d.Signal(context.Background(), "puck-1", capability.EnterZone); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if notify.count() != 1 {
		t.Errorf("notify executions = %d, want 1", notify.count())
	}
	if len(obs.results) != 1 || len(obs.signals) != 1 || !obs.signals[0].Resolved() {
		t.Errorf("results = %d signals = %+v, want one of each, resolved", len(obs.results), obs.signals)
	}
}

func TestSignal_LoadErrorIsNotObserved(t *testing.T) {
	obs := &recordingObserver{}
	d := NewDispatcher(staticRepo{err: errors.New("disk gone")}, mockCatalogue{}, nil)
	d.AddObserver(obs)

	if _, err := d.Signal(context.Background(), "puck-1", capability.EnterZone); err == nil {
		t.Fatal("Signal() error = nil, want load error")
	}
	if len(obs.signals) != 0 {
		t.Errorf("signals = %d, want 0", len(obs.signals))
	}
}
