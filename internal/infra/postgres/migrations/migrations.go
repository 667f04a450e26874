// Package migrations holds the schema of the Postgres store, applied with bun's migrator.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed sql
var sqlFiles embed.FS

var Migrations = migrate.NewMigrations()

// exec runs one embedded SQL file.
func exec(name string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		body, err := sqlFiles.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		_, err = db.ExecContext(ctx, string(body))
		return err
	}
}
