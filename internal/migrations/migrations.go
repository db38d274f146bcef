// Package migrations embeds the core schema and runs it through
// rubenv/sql-migrate, schema-qualifying every statement for the caller's
// (chain, schema) pair.
package migrations

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/drips-network/dripfeed-sub001/internal/config"
	idb "github.com/drips-network/dripfeed-sub001/internal/db"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed sql/001_cursor_and_hashes.sql
var mig001 string

//go:embed sql/002_events.sql
var mig002 string

//go:embed sql/003_domain_entities.sql
var mig003 string

//go:embed sql/004_audit_tables.sql
var mig004 string

// bookkeepingTable is sql-migrate's own applied-migrations ledger, matching
// spec §6's `_migrations(name PK, applied_at)` persisted table.
const bookkeepingTable = "_migrations"

// Run applies all pending migrations against database, inside schema.
func Run(log *logger.Logger, database *sql.DB, schema string) error {
	if err := config.ValidateSchema(schema); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	if _, err := database.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return fmt.Errorf("creating schema %s: %w", schema, err)
	}

	migrate.SetTable(bookkeepingTable)
	migrate.SetSchema(schema)

	migs := []idb.Migration{
		{ID: "001_cursor_and_hashes.sql", SQL: mig001, Schema: schema},
		{ID: "002_events.sql", SQL: mig002, Schema: schema},
		{ID: "003_domain_entities.sql", SQL: mig003, Schema: schema},
		{ID: "004_audit_tables.sql", SQL: mig004, Schema: schema},
	}

	return idb.RunMigrations(log, database, migs)
}
