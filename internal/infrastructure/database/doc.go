// Package database provides SQLite connectivity for Puck Central.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Forward schema migrations loaded from an fs.FS (see /migrations)
//   - Connection lifecycle and health checks
//
// The puck registry and the rule store share one *DB. SQLite allows a single
// writer, so the pool is capped at one open connection and multi-row changes
// (capability unions, rule reconciliation) run inside BeginTx.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
