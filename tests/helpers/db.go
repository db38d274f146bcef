// Package helpers provides integration-test scaffolding: a disposable
// Postgres schema and, for chain-level tests, an Anvil-backed EVM node.
package helpers

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"testing"

	idb "github.com/drips-network/dripfeed-sub001/internal/db"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/internal/migrations"
	"github.com/stretchr/testify/require"
)

const testDatabaseURLEnv = "TEST_DATABASE_URL"

// TestDatabaseURL returns TEST_DATABASE_URL, skipping the test if unset.
// Components that open their own connection (e.g. the Lock Manager's
// dedicated connection) need the raw URL rather than a shared pool.
func TestDatabaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set, skipping Postgres-backed test", testDatabaseURLEnv)
	}
	return url
}

// NewTestSchema opens a pool against TEST_DATABASE_URL, creates a randomly
// named schema, runs migrations into it, and registers cleanup to drop the
// schema when the test completes. Skips the test if TEST_DATABASE_URL is
// unset.
func NewTestSchema(t *testing.T) (*sql.DB, string) {
	t.Helper()

	url := os.Getenv(testDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set, skipping Postgres-backed test", testDatabaseURLEnv)
	}

	ctx := context.Background()
	database, err := idb.Open(ctx, url, idb.DefaultPoolConfig())
	require.NoError(t, err)

	schema := fmt.Sprintf("dripfeed_test_%d", rand.Int63())

	require.NoError(t, migrations.Run(logger.Nop(), database, schema))

	t.Cleanup(func() {
		_, _ = database.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		database.Close()
	})

	return database, schema
}
