// Package migrations embeds the SQL migration files into the binary so the
// bridge can bring its schema up to date without files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-counter/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// FS exposes the embedded migrations, for tests that need the real schema.
var FS = migrationsFS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
