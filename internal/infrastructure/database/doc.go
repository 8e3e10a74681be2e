// Package database provides the SQLite state store for Curtain Lights.
//
// The store is small: it holds the trigger scheduler's per-tenant cursors so
// a restart does not replay events that were already celebrated.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
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
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql. Migrations are additive: new columns
// must be nullable or carry a default.
package database
