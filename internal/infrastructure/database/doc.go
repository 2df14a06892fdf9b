// Package database provides the SQLite connection behind the backlightd
// audit trail.
//
// The connection uses WAL mode and a busy timeout, and is limited to a
// single open connection because SQLite has a single writer. The file is
// created with mode 0600.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be NULLABLE or have a DEFAULT,
// and every .up.sql has a matching .down.sql for manual rollback.
package database
