// Package database provides SQLite connectivity for the media bridge.
//
// The bridge stores the devices it has ever registered (so identities and
// last known locations survive restarts) and a bounded history of emitted
// capability events. Schema changes are versioned SQL files embedded by
// the migrations package.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
