package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/puck-central/internal/capability"
)

// Repository defines rule and action persistence.
type Repository interface {
	// FindRules returns every rule for (puckID, trigger), oldest first, with
	// actions in sort order. No match returns an empty slice, not an error.
	FindRules(ctx context.Context, puckID string, trigger capability.Trigger) ([]Rule, error)

	// GetRule returns ErrRuleNotFound if the rule does not exist.
	GetRule(ctx context.Context, id string) (*Rule, error)

	// ListByPuck returns all rules of one puck ordered by trigger then age.
	ListByPuck(ctx context.Context, puckID string) ([]Rule, error)

	// List returns all rules.
	List(ctx context.Context) ([]Rule, error)

	// CreateOrExtend persists rule.Actions. A persisted rule is extended.
	// A pending rule extends the oldest persisted rule for the same
	// (puck, trigger), or is inserted when there is none. Runs in one
	// transaction and returns the stored rule.
	CreateOrExtend(ctx context.Context, rule *Rule) (*Rule, error)

	// CreateAction appends an action to an existing rule.
	CreateAction(ctx context.Context, action *Action) (*Action, error)

	// DeleteRule removes a rule and its actions.
	DeleteRule(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectRule = `SELECT id, puck_id, trigger_name, created_at, updated_at FROM rules`

const selectAction = `
	SELECT id, rule_id, actuator, config, sort_order, created_at
	FROM actions`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// querier covers *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) FindRules(ctx context.Context, puckID string, trigger capability.Trigger) ([]Rule, error) {
	return queryRules(ctx, r.db,
		selectRule+" WHERE puck_id = ? AND trigger_name = ? ORDER BY created_at, id",
		puckID, string(trigger),
	)
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id string) (*Rule, error) {
	return getRule(ctx, r.db, id)
}

func (r *SQLiteRepository) ListByPuck(ctx context.Context, puckID string) ([]Rule, error) {
	return queryRules(ctx, r.db,
		selectRule+" WHERE puck_id = ? ORDER BY trigger_name, created_at, id",
		puckID,
	)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Rule, error) {
	return queryRules(ctx, r.db, selectRule+" ORDER BY puck_id, trigger_name, created_at, id")
}

func (r *SQLiteRepository) CreateOrExtend(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := time.Now().UTC()
	ruleID := rule.ID

	if ruleID == "" {
		// Reconcile a pending rule against what is already stored.
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM rules WHERE puck_id = ? AND trigger_name = ? ORDER BY created_at, id LIMIT 1",
			rule.PuckID, string(rule.Trigger),
		).Scan(&ruleID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			ruleID = GenerateID()
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO rules (id, puck_id, trigger_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
				ruleID, rule.PuckID, string(rule.Trigger), formatTime(now), formatTime(now),
			); err != nil {
				if isForeignKeyError(err) {
					return nil, ErrUnknownPuck
				}
				return nil, fmt.Errorf("inserting rule: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("finding rule: %w", err)
		}
	} else {
		var stored Rule
		if err := tx.QueryRowContext(ctx, "SELECT puck_id, trigger_name FROM rules WHERE id = ?", ruleID).
			Scan(&stored.PuckID, &stored.Trigger); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrRuleNotFound
			}
			return nil, fmt.Errorf("querying rule: %w", err)
		}
		if stored.PuckID != rule.PuckID || stored.Trigger != rule.Trigger {
			return nil, fmt.Errorf("%w: rule %s belongs to %s/%s", ErrInvalidRule, ruleID, stored.PuckID, stored.Trigger)
		}
	}

	for i := range rule.Actions {
		a := rule.Actions[i].DeepCopy()
		a.RuleID = ruleID
		if _, err := insertAction(ctx, tx, &a, now); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE rules SET updated_at = ? WHERE id = ?", formatTime(now), ruleID); err != nil {
		return nil, fmt.Errorf("touching rule: %w", err)
	}

	stored, err := getRule(ctx, tx, ruleID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rule: %w", err)
	}
	return stored, nil
}

func (r *SQLiteRepository) CreateAction(ctx context.Context, action *Action) (*Action, error) {
	if action.RuleID == "" {
		return nil, fmt.Errorf("%w: missing rule id", ErrInvalidAction)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	a := action.DeepCopy()
	stored, err := insertAction(ctx, tx, &a, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing action: %w", err)
	}
	return stored, nil
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return ErrRuleNotFound
	}
	return nil
}

// insertAction appends a to its rule with the next sort order.
func insertAction(ctx context.Context, q querier, a *Action, now time.Time) (*Action, error) {
	if err := validateAction(*a); err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = GenerateID()
	}
	if a.Config == nil {
		a.Config = map[string]any{}
	}
	a.CreatedAt = now

	if err := q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sort_order) + 1, 0) FROM actions WHERE rule_id = ?", a.RuleID,
	).Scan(&a.SortOrder); err != nil {
		return nil, fmt.Errorf("computing sort order: %w", err)
	}

	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return nil, fmt.Errorf("marshalling action config: %w", err)
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO actions (id, rule_id, actuator, config, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.RuleID, string(a.Actuator), string(cfg), a.SortOrder, formatTime(a.CreatedAt),
	); err != nil {
		if isForeignKeyError(err) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("inserting action: %w", err)
	}
	return a, nil
}

func getRule(ctx context.Context, q querier, id string) (*Rule, error) {
	rule, err := scanRule(q.QueryRowContext(ctx, selectRule+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying rule: %w", err)
	}
	if err := loadActions(ctx, q, []*Rule{rule}); err != nil {
		return nil, err
	}
	return rule, nil
}

func queryRules(ctx context.Context, q querier, query string, args ...any) ([]Rule, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}

	var rules []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	// Close before loading actions: the connection pool holds one connection.
	rows.Close()

	if err := loadActions(ctx, q, rules); err != nil {
		return nil, err
	}

	out := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		out = append(out, *rule)
	}
	return out, nil
}

// loadActions fills in the actions of each rule in sort order.
func loadActions(ctx context.Context, q querier, rules []*Rule) error {
	if len(rules) == 0 {
		return nil
	}

	byID := make(map[string]*Rule, len(rules))
	placeholders := make([]string, 0, len(rules))
	args := make([]any, 0, len(rules))
	for _, rule := range rules {
		rule.Actions = []Action{}
		byID[rule.ID] = rule
		placeholders = append(placeholders, "?")
		args = append(args, rule.ID)
	}

	rows, err := q.QueryContext(ctx,
		selectAction+" WHERE rule_id IN ("+strings.Join(placeholders, ", ")+") ORDER BY rule_id, sort_order",
		args...,
	)
	if err != nil {
		return fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return fmt.Errorf("scanning action: %w", err)
		}
		if rule, ok := byID[a.RuleID]; ok {
			rule.Actions = append(rule.Actions, *a)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating actions: %w", err)
	}
	return nil
}

func scanRule(s rowScanner) (*Rule, error) {
	var (
		rule                 Rule
		trigger              string
		createdAt, updatedAt string
	)
	if err := s.Scan(&rule.ID, &rule.PuckID, &trigger, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rule.Trigger = capability.Trigger(trigger)
	rule.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
	rule.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
	return &rule, nil
}

func scanAction(s rowScanner) (*Action, error) {
	var (
		a         Action
		kind, cfg string
		createdAt string
	)
	if err := s.Scan(&a.ID, &a.RuleID, &kind, &cfg, &a.SortOrder, &createdAt); err != nil {
		return nil, err
	}
	a.Actuator = ActuatorKind(kind)
	if err := json.Unmarshal([]byte(cfg), &a.Config); err != nil {
		return nil, fmt.Errorf("decoding config for action %s: %w", a.ID, err)
	}
	if a.Config == nil {
		a.Config = map[string]any{}
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
	return &a, nil
}

func validateRule(rule *Rule) error {
	if rule == nil || rule.PuckID == "" {
		return fmt.Errorf("%w: missing puck", ErrInvalidRule)
	}
	if !capability.Known(rule.Trigger) {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, rule.Trigger)
	}
	if len(rule.Actions) == 0 {
		return ErrNoActions
	}
	return nil
}

func validateAction(a Action) error {
	if strings.TrimSpace(string(a.Actuator)) == "" {
		return fmt.Errorf("%w: missing actuator", ErrInvalidAction)
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// isForeignKeyError checks if an error is a SQLite foreign key violation.
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
