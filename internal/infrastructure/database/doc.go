// Package database provides the SQLite connection of the hOn bridge.
//
// The database holds two things:
//   - session_state: the framework-version tag corrected by the identity
//     provider, so a restart does not repeat the mismatch round trip
//   - command_log: every dispatched command and its outcome
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Credentials and session tokens are never stored
//
// Usage:
//
//	db, err := database.OpenAndMigrate(ctx, database.FromConfig(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// Migration Strategy:
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql. Tables are
// created STRICT. New columns must be NULLABLE or have DEFAULT values.
package database
