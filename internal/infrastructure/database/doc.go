// Package database provides the SQLite presence journal.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations (additive-only, applied from an fs.FS)
//   - An append-only journal of presence and radio events
//
// The journal is history for humans and dashboards. hapt never reads it
// back into tracker state; after a restart presence is rebuilt from the
// radios themselves.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//	journal := database.NewJournal(db, sessionID)
//	journal.Prune(ctx, time.Now().AddDate(0, 0, -cfg.Database.RetentionDays))
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql and are
// never edited once released.
package database
