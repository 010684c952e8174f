package puck

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines puck persistence operations.
type Repository interface {
	// GetByID returns ErrPuckNotFound if the puck does not exist.
	GetByID(ctx context.Context, id string) (*Puck, error)

	// GetByAddress looks up a puck by canonical MAC address.
	GetByAddress(ctx context.Context, address string) (*Puck, error)

	// GetByBeacon looks up a puck by its normalised beacon identity.
	GetByBeacon(ctx context.Context, beacon BeaconIdentity) (*Puck, error)

	// List returns all pucks ordered by name, then creation time.
	List(ctx context.Context) ([]Puck, error)

	// Create inserts a puck. Returns ErrPuckExists on an address or beacon clash.
	Create(ctx context.Context, p *Puck) error

	// Rename changes the display name.
	Rename(ctx context.Context, id, name string) (*Puck, error)

	// UnionServices adds services to the puck at address inside one
	// transaction and returns the stored result.
	UnionServices(ctx context.Context, address string, services []ServiceID) (*Puck, error)

	// Delete removes a puck. Its rules and actions go with it (ON DELETE CASCADE).
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectPuck = `
	SELECT id, name, minor, major, proximity_uuid, address,
		service_capabilities, created_at, updated_at
	FROM pucks`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// queryRower covers *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Puck, error) {
	return getOne(ctx, r.db, selectPuck+" WHERE id = ?", id)
}

func (r *SQLiteRepository) GetByAddress(ctx context.Context, address string) (*Puck, error) {
	return getOne(ctx, r.db, selectPuck+" WHERE address = ?", address)
}

func (r *SQLiteRepository) GetByBeacon(ctx context.Context, b BeaconIdentity) (*Puck, error) {
	return getOne(ctx, r.db,
		selectPuck+" WHERE proximity_uuid = ? AND major = ? AND minor = ?",
		b.ProximityUUID, b.Major, b.Minor,
	)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Puck, error) {
	rows, err := r.db.QueryContext(ctx, selectPuck+" ORDER BY name, created_at")
	if err != nil {
		return nil, fmt.Errorf("querying pucks: %w", err)
	}
	defer rows.Close()

	var pucks []Puck
	for rows.Next() {
		p, err := scanPuck(rows)
		if err != nil {
			return nil, err
		}
		pucks = append(pucks, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pucks: %w", err)
	}
	return pucks, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, p *Puck) error {
	caps, err := encodeServices(p.ServiceCapabilities)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pucks (
			id, name, minor, major, proximity_uuid, address,
			service_capabilities, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Minor, p.Major, p.ProximityUUID, p.Address,
		caps, formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrPuckExists
		}
		return fmt.Errorf("inserting puck: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Rename(ctx context.Context, id, name string) (*Puck, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE pucks SET name = ?, updated_at = ? WHERE id = ?",
		name, formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("renaming puck: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return nil, ErrPuckNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteRepository) UnionServices(ctx context.Context, address string, services []ServiceID) (*Puck, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	p, err := getOne(ctx, tx, selectPuck+" WHERE address = ?", address)
	if err != nil {
		return nil, err
	}

	merged, changed := unionServices(p.ServiceCapabilities, services)
	if !changed {
		return p, nil
	}

	caps, err := encodeServices(merged)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE pucks SET service_capabilities = ?, updated_at = ? WHERE id = ?",
		caps, formatTime(now), p.ID,
	); err != nil {
		return nil, fmt.Errorf("updating capabilities: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing capabilities: %w", err)
	}

	p.ServiceCapabilities = merged
	p.UpdatedAt = now
	return p, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM pucks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting puck: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return ErrPuckNotFound
	}
	return nil
}

func getOne(ctx context.Context, q queryRower, query string, args ...any) (*Puck, error) {
	p, err := scanPuck(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPuckNotFound
		}
		return nil, fmt.Errorf("querying puck: %w", err)
	}
	return p, nil
}

func scanPuck(s rowScanner) (*Puck, error) {
	var (
		p                    Puck
		caps                 string
		createdAt, updatedAt string
	)
	if err := s.Scan(
		&p.ID, &p.Name, &p.Minor, &p.Major, &p.ProximityUUID, &p.Address,
		&caps, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(caps), &p.ServiceCapabilities); err != nil {
		return nil, fmt.Errorf("decoding service_capabilities for %s: %w", p.ID, err)
	}
	if p.ServiceCapabilities == nil {
		p.ServiceCapabilities = []ServiceID{}
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // Format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
	return &p, nil
}

func encodeServices(ids []ServiceID) (string, error) {
	if ids == nil {
		ids = []ServiceID{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshalling service_capabilities: %w", err)
	}
	return string(b), nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
