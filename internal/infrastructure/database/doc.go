// Package database provides SQLite connectivity for lanwake.
//
// It is used when storage.backend is "sqlite". The device registry is stored
// in a single devices table; the schema is managed by embedded migrations
// (see the top-level migrations package).
//
// Connection setup:
//   - WAL mode for concurrent reads during writes
//   - Busy timeout to avoid "database is locked" under contention
//   - A single open connection (SQLite has one writer)
//   - File permissions 0600
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
