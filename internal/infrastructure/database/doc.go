// Package database provides SQLite connection management for Casement Core.
//
// The embedded SQLite database holds the credential store: user accounts
// and the issued-token ledger. Relay state is never persisted here; the
// current snapshot lives in memory and telemetry goes to the archive.
//
// # Features
//
//   - WAL mode with busy-timeout pragmas for concurrent access
//   - Single-writer connection pool (SQLite constraint)
//   - Embedded SQL migrations applied at startup, each in its own
//     transaction
//   - Health checks for startup verification
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
