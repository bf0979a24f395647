// Package database provides the writable SQLite handle behind the state
// database (preferences and schema migrations).
//
// Database file permissions are set to 0600. WAL mode and busy timeout come
// from config.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Storage.StatePath, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS()); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_name.up.sql with a matching
// .down.sql, and schema_migrations records version, name and apply time.
package database
