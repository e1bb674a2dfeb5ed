// Package database provides the SQLite store behind the relay's run and
// delivery history.
//
// This package manages:
//   - A single-writer connection with optional WAL mode
//   - Forward-only schema migrations read from an fs.FS
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to its owner (0600)
//   - Message payloads are stored as received; do not enable history for
//     topics that carry secrets
//
// Usage:
//
//	db, err := database.Open(cfg.History)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
