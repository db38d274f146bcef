package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	upDownSeparator   = "-- +migrate Up"
	downMarker        = "-- +migrate Down"
	schemaPlaceholder = "/*schema*/"
	// NoLimitMigrations indicates there is no limit on the number of migrations to run.
	NoLimitMigrations  = 0
	migrationDirections = 2
)

// Migration is one embedded, schema-parameterized SQL file.
type Migration struct {
	ID     string
	SQL    string
	Schema string
}

// RunMigrations applies all pending migrations against db, qualifying every
// table name in the embedded SQL with schema.
func RunMigrations(log *logger.Logger, database *sql.DB, migrations []Migration) error {
	return RunMigrationsExtended(log, database, migrations, migrate.Up, NoLimitMigrations)
}

// RunMigrationsExtended runs up to maxMigrations migrations in direction dir.
// Pass NoLimitMigrations for no limit.
func RunMigrationsExtended(log *logger.Logger, database *sql.DB, migrationsParam []Migration,
	dir migrate.MigrationDirection, maxMigrations int) error {
	migs := &migrate.MemoryMigrationSource{Migrations: []*migrate.Migration{}}

	if maxMigrations != NoLimitMigrations {
		migrate.SetIgnoreUnknown(true)
	}

	for _, m := range migrationsParam {
		qualified := strings.ReplaceAll(m.SQL, schemaPlaceholder, m.Schema)
		splitted := strings.SplitN(qualified, upDownSeparator, 2)
		if len(splitted) < migrationDirections {
			return fmt.Errorf("migration %s missing %q separator", m.ID, upDownSeparator)
		}

		downSQL := splitted[0]
		upSQL := splitted[1]

		if idx := strings.Index(downSQL, downMarker); idx != -1 {
			downSQL = strings.TrimSpace(downSQL[idx+len(downMarker):])
		} else {
			downSQL = strings.TrimSpace(downSQL)
		}
		upSQL = strings.TrimSpace(upSQL)

		migs.Migrations = append(migs.Migrations, &migrate.Migration{
			Id:   m.Schema + "_" + m.ID,
			Up:   []string{upSQL},
			Down: []string{downSQL},
		})
	}

	var names strings.Builder
	for _, m := range migs.Migrations {
		names.WriteString(m.Id + ", ")
	}

	log.Debugf("running migrations (max %d/%d): %s", maxMigrations, len(migs.Migrations), names.String())
	n, err := migrate.ExecMax(database, "postgres", migs, dir, maxMigrations)
	if err != nil {
		return fmt.Errorf("executing migrations (max %d/%d, %s): %w", maxMigrations, len(migs.Migrations), names.String(), err)
	}

	log.Infof("applied %d migrations: %s", n, names.String())
	return nil
}
