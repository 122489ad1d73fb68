// Package migrations embeds the SQL migration files into the binary and
// registers them with the database package.
//
// Import it for its side effect:
//
//	import _ "github.com/nerrad567/hon-bridge/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/hon-bridge/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
