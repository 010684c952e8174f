package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nerrad567/puck-central/internal/capability"
	"github.com/nerrad567/puck-central/internal/infrastructure/database"
	"github.com/nerrad567/puck-central/internal/puck"
	"github.com/nerrad567/puck-central/migrations"
)

// setupTestDB opens an in-memory database with the production schema.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

// setupRepo returns a repository and the IDs of n freshly created pucks.
func setupRepo(t *testing.T, n int) (*SQLiteRepository, []string) {
	t.Helper()
	db := setupTestDB(t)

	pucks := puck.NewRegistry(puck.NewSQLiteRepository(db.DB))
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, err := pucks.Create(context.Background(), puck.NewPuck{
			Beacon: puck.BeaconIdentity{
				ProximityUUID: "e2c56db5-dffb-48d2-b060-d0f5a71096e0",
				Major:         1,
				Minor:         uint16(i + 1),
			},
			Address: fmt.Sprintf("C4:BE:84:0A:11:%02X", i+1),
		})
		if err != nil {
			t.Fatalf("creating puck: %v", err)
		}
		ids = append(ids, p.ID)
	}
	return NewSQLiteRepository(db.DB), ids
}

func notifyAction(msg string) Action {
	return Action{Actuator: "notify", Config: map[string]any{"message": msg}}
}

func pendingRule(puckID string, trigger capability.Trigger, actions ...Action) *Rule {
	r := NewRule(puckID, trigger)
	r.Actions = actions
	return r
}

// ─── CreateOrExtend ────────────────────────────────────────────────

func TestCreateOrExtend_InsertsNewRule(t *testing.T) {
	repo, pucks := setupRepo(t, 1)
	ctx := context.Background()

	rule, err := repo.CreateOrExtend(ctx, pendingRule(pucks[0], capability.EnterZone, notifyAction("hi")))
	if err != nil {
		t.Fatalf("CreateOrExtend() error = %v", err)
	}
	if rule.Pending() {
		t.Fatal("stored rule has no ID")
	}
	if len(rule.Actions) != 1 || rule.Actions[0].RuleID != rule.ID || rule.Actions[0].SortOrder != 0 {
		t.Errorf("actions = %+v", rule.Actions)
	}
	if rule.Actions[0].Config["message"] != "hi" {
		t.Errorf("config = %v", rule.Actions[0].Config)
	}
}

func TestCreateOrExtend_PendingRuleExtendsExisting(t *testing.T) {
	repo, pucks := setupRepo(t, 1)
	ctx := context.Background()

	r2, err := repo.CreateOrExtend(ctx, pendingRule(pucks[0], capability.EnterZone, notifyAction("first")))
	if err != nil {
		t.Fatal(err)
	}

	// A fresh in-memory rule for the same (puck, trigger).
	r1 := pendingRule(pucks[0], capability.EnterZone, notifyAction("second"))
	got, err := repo.CreateOrExtend(ctx, r1)
	if err != nil {
		t.Fatalf("CreateOrExtend() error = %v", err)
	}

	if got.ID != r2.ID {
		t.Errorf("rule ID = %s, want existing %s", got.ID, r2.ID)
	}
	if len(got.Actions) != 2 || got.Actions[1].Config["message"] != "second" || got.Actions[1].SortOrder != 1 {
		t.Errorf("actions = %+v", got.Actions)
	}

	rules, err := repo.FindRules(ctx, pucks[0], capability.EnterZone)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Errorf("FindRules() returned %d rules, want 1", len(rules))
	}
}

func TestCreateOrExtend_ExtendsOldestBySubSecondTime(t *testing.T) {
	repo, pucks := setupRepo(t, 1)
	ctx := context.Background()

	// 100ms formats as .1 and 150ms as .15 under a trimmed layout, which
	// sort the wrong way round as text.
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	for _, r := range []struct {
		id string
		at time.Time
	}{
		{"rule-newer", base.Add(150 * time.Millisecond)},
		{"rule-older", base.Add(100 * time.Millisecond)},
	} {
		if _, err := repo.db.ExecContext(ctx,
			"INSERT INTO rules (id, puck_id, trigger_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			r.id, pucks[0], string(capability.EnterZone), formatTime(r.at), formatTime(r.at),
		); err != nil {
			t.Fatalf("seeding rule: %v", err)
		}
	}

	rules, err := repo.FindRules(ctx, pucks[0], capability.EnterZone)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 || rules[0].ID != "rule-older" {
		t.Fatalf("FindRules() = %+v, want rule-older first", rules)
	}
	if !rules[0].CreatedAt.Equal(base.Add(100 * time.Millisecond)) {
		t.Errorf("CreatedAt = %v", rules[0].CreatedAt)
	}

	got, err := repo.CreateOrExtend(ctx, pendingRule(pucks[0], capability.EnterZone, notifyAction("x")))
	if err != nil {
		t.Fatalf("CreateOrExtend() error = %v", err)
	}
	if got.ID != "rule-older" {
		t.Errorf("extended %s, want rule-older", got.ID)
	}
}

func TestFormatTime_SortsChronologically(t *testing.T) {
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(100 * time.Millisecond),
		base.Add(150 * time.Millisecond),
		base.Add(time.Second),
	}
	for i := 1; i < len(times); i++ {
		prev, cur := formatTime(times[i-1]), formatTime(times[i])
		if prev >= cur {
			t.Errorf("formatTime(%v) = %q does not sort before %q", times[i-1], prev, cur)
		}
		if len(prev) != len(cur) {
			t.Errorf("widths differ: %q vs %q", prev, cur)
		}
	}
}

func TestCreateOrExtend_OtherTriggerIsSeparateRule(t *testing.T) {
	repo, pucks := setupRepo(t, 2)
	ctx := context.Background()

	a, _ := repo.CreateOrExtend(ctx, pendingRule(pucks[0], capability.EnterZone, notifyAction("a"))) //nolint:errcheck // checked via b
	b, err := repo.CreateOrExtend(ctx, pendingRule(pucks[0], capability.ExitZone, notifyAction("b")))
	if err != nil {
		t.Fatal(err)
	}
	c, err := repo.CreateOrExtend(ctx, pendingRule(pucks[1], capability.EnterZone, notifyAction("c")))
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID || a.ID == c.ID || b.ID == c.ID {
		t.Errorf("expected three distinct rules, got %s %s %s", a.ID, b.ID, c.ID)
	}
}

func TestCreateOrExtend_PersistedRule(t *testing.T) {
	repo, pucks := setupRepo(t, 1)
	ctx := context.Background()

	stored, err := repo.CreateOrExtend(ctx, pendingRule(pucks[0], capability.CubeUp, notifyAction("1")))
	if err != nil {
		t.Fatal(err)
	}

	ext := stored.DeepCopy()
	ext.Actions = []Action{notifyAction("2"), notifyAction("3")}
	got, err := repo.CreateOrExtend(ctx, ext)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Actions) != 3 {
		t.Fatalf("actions = %d, want 3", len(got.Actions))
	}
	for i, a := range got.Actions {
		if a.SortOrder != i {
			t.Errorf("action %d sort order = %d", i, a.SortOrder)
		}
	}

	missing := stored.DeepCopy()
	missing.ID = "no-such-rule"
	if _, err := repo.CreateOrExtend(ctx, missing); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("unknown ID error = %v, want ErrRuleNotFound", err)
	}

	moved := stored.DeepCopy()
	moved.Trigger = capability.CubeDown
	moved.Actions = []Action{notifyAction("x")}
	if _, err := repo.CreateOrExtend(ctx, moved); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("mismatched trigger error = %v, want ErrInvalidRule", err)
	}
}

func TestCreateOrExtend_Validation(t *testing.T) {
	repo, pucks := setupRepo(t, 1)
	ctx := context.Background()

	tests := []struct {
		name string
		rule *Rule
		want error
	}{
		{"missing puck", pendingRule("", capability.EnterZone, notifyAction("x")), ErrInvalidRule},
		{"unknown trigger", pendingRule(pucks[0], "shake", notifyAction("x")), ErrUnknownTrigger},
		{"no actions", pendingRule(pucks[0], capability.EnterZone), ErrNoActions},
		{"no actuator", pendingRule(pucks[0], capability.EnterZone, Action{}), ErrInvalidAction},
		{"unknown puck", pendingRule("ghost", capability.EnterZone, notifyAction("x")), ErrUnknownPuck},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.CreateOrExtend(ctx, tt.rule); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	// Nothing from the failed attempts was left behind.
	all, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("List() = %d rules after failures, want 0", len(all))
	}
}

// ─── Actions ───────────────────────────────────────────────────────

func TestCreateAction(t *testing.T) {
	repo, pucks := setupRepo(t, 1)
	ctx := context.Background()

	rule, err := repo.CreateOrExtend(ctx, pendingRule(pucks[0], capability.ButtonPressed, notifyAction("1")))
	if err != nil {
		t.Fatal(err)
	}

	a, err := repo.CreateAction(ctx, &Action{RuleID: rule.ID, Actuator: "webhook"})
	if err != nil {
		t.Fatalf("CreateAction() error = %v", err)
	}
	if a.ID == "" || a.SortOrder != 1 || a.Config == nil {
		t.Errorf("action = %+v", a)
	}

	if _, err := repo.CreateAction(ctx, &Action{RuleID: "ghost", Actuator: "notify"}); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("unknown rule error = %v, want ErrRuleNotFound", err)
	}
	if _, err := repo.CreateAction(ctx, &Action{Actuator: "notify"}); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("missing rule error = %v, want ErrInvalidAction", err)
	}
}

// ─── Queries and deletion ──────────────────────────────────────────

func TestFindRules_NoMatch(t *testing.T) {
	repo, pucks := setupRepo(t, 1)

	rules, err := repo.FindRules(context.Background(), pucks[0], capability.EnterZone)
	if err != nil {
		t.Fatalf("FindRules() error = %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("FindRules() = %v, want empty", rules)
	}
}

func TestListByPuckAndDelete(t *testing.T) {
	repo, pucks := setupRepo(t, 1)
	ctx := context.Background()

	enter, err := repo.CreateOrExtend(ctx, pendingRule(pucks[0], capability.EnterZone, notifyAction("in")))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateOrExtend(ctx, pendingRule(pucks[0], capability.ExitZone, notifyAction("out"))); err != nil {
		t.Fatal(err)
	}

	rules, err := repo.ListByPuck(ctx, pucks[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 || rules[0].Trigger != capability.EnterZone {
		t.Fatalf("ListByPuck() = %+v", rules)
	}

	if err := repo.DeleteRule(ctx, enter.ID); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if _, err := repo.GetRule(ctx, enter.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetRule() after delete error = %v", err)
	}
	if err := repo.DeleteRule(ctx, enter.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("second DeleteRule() error = %v", err)
	}
}

func TestRulesCascadeWithPuck(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	pucks := puck.NewRegistry(puck.NewSQLiteRepository(db.DB))
	p, err := pucks.Create(ctx, puck.NewPuck{
		Beacon:  puck.BeaconIdentity{ProximityUUID: "e2c56db5-dffb-48d2-b060-d0f5a71096e0", Major: 1, Minor: 9},
		Address: "C4:BE:84:0A:11:09",
	})
	if err != nil {
		t.Fatal(err)
	}
	repo := NewSQLiteRepository(db.DB)
	if _, err := repo.CreateOrExtend(ctx, pendingRule(p.ID, capability.EnterZone, notifyAction("x"))); err != nil {
		t.Fatal(err)
	}

	if err := pucks.Delete(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	var actions int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM actions").Scan(&actions); err != nil {
		t.Fatal(err)
	}
	rules, _ := repo.List(ctx) //nolint:errcheck // counted below
	if len(rules) != 0 || actions != 0 {
		t.Errorf("after puck delete: %d rules, %d actions; want 0, 0", len(rules), actions)
	}
}
