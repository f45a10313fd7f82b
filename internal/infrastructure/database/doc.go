// Package database opens the SQLite file that holds Tether recordings and
// applies its schema migrations.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql,
// each with an optional .down.sql. They are read from any fs.FS, normally
// the embedded set in the top-level migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
//	    return err
//	}
//
// The database file is created with 0600 permissions. Recorded payloads are
// stored verbatim, so treat the file with the same care as the broker traffic
// it captures.
package database
