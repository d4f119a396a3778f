// Package migrations embeds the SQL migration files into the binary.
//
// Importing this package (for side effects) wires the embedded filesystem
// into the database package:
//
//	import _ "github.com/openphotometrics/rigbridge/migrations"
package migrations

import (
	"embed"

	"github.com/openphotometrics/rigbridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
