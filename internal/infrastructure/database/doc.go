// Package database provides SQLite persistence for the capture-set index.
//
// This package manages:
//   - Opening the SQLite database with WAL mode and busy timeout pragmas
//   - Forward-only schema migrations from an embedded filesystem
//   - Health checks for the readiness endpoint
//
// # Connection model
//
// SQLite supports a single writer, so the connection pool is pinned to one
// connection. All access goes through database/sql with ? placeholders.
//
// # Migrations
//
// Migration files are named NNN_description.sql and applied in numeric
// order, each in its own transaction. The migrations package embeds the
// files and wires MigrationsFS at init time.
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
