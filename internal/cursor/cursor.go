// Package cursor implements the Cursor Store (spec §4.3): the durable
// fetched_to_block marker, one row per chain.
package cursor

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/russross/meddler"
)

// State is the cursor row for one chain.
type State struct {
	ChainID        uint64 `meddler:"chain_id,pk"`
	FetchedToBlock uint64 `meddler:"fetched_to_block"`
}

// Store wraps the schema-qualified _cursor table.
type Store struct {
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// New creates a Store bound to schema.db.
func New(database *sql.DB, schema string, log *logger.Logger) *Store {
	return &Store{db: database, schema: schema, log: log.WithComponent("cursor-store")}
}

func (s *Store) table() string { return s.schema + "._cursor" }

// InitializeIfAbsent inserts the (chainID, startBlock) row if it does not
// already exist. Idempotent across restarts.
func (s *Store) InitializeIfAbsent(ctx context.Context, chainID, startBlock uint64) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (chain_id, fetched_to_block) VALUES ($1, $2)
		 ON CONFLICT (chain_id) DO NOTHING`, s.table()),
		chainID, startBlock)
	if err != nil {
		return fmt.Errorf("initializing cursor: %w", err)
	}
	return nil
}

// Get returns the current cursor state without locking.
func (s *Store) Get(chainID uint64) (*State, error) {
	var state State
	err := meddler.QueryRow(s.db, &state, fmt.Sprintf(
		`SELECT * FROM %s WHERE chain_id = $1`, s.table()), chainID)
	if err != nil {
		return nil, fmt.Errorf("getting cursor: %w", err)
	}
	return &state, nil
}

// GetForUpdate reads the cursor row with a row-level exclusive lock, inside
// tx. Required before any mutation when concurrency is possible; the
// Fetcher's reorg rewind always uses this path (spec §4.3).
func (s *Store) GetForUpdate(tx *sql.Tx, chainID uint64) (*State, error) {
	var state State
	err := meddler.QueryRow(tx, &state, fmt.Sprintf(
		`SELECT * FROM %s WHERE chain_id = $1 FOR UPDATE`, s.table()), chainID)
	if err != nil {
		return nil, fmt.Errorf("getting cursor for update: %w", err)
	}
	return &state, nil
}

// Advance moves fetched_to_block forward to toBlock. With the single-writer
// invariant held by the Lock Manager, advancing without a prior locked read
// is tolerated (spec §4.3).
func (s *Store) Advance(ctx context.Context, tx *sql.Tx, chainID, toBlock uint64) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET fetched_to_block = $1, updated_at = now() WHERE chain_id = $2`, s.table()),
		toBlock, chainID)
	if err != nil {
		return fmt.Errorf("advancing cursor: %w", err)
	}
	return requireOneRow(res, "advance cursor")
}

// Reset rewinds fetched_to_block to toBlock, used by reorg rewind. Always
// called after GetForUpdate within the same transaction (spec §4.6 step 2).
func (s *Store) Reset(ctx context.Context, tx *sql.Tx, chainID, toBlock uint64) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET fetched_to_block = $1, updated_at = now() WHERE chain_id = $2`, s.table()),
		toBlock, chainID)
	if err != nil {
		return fmt.Errorf("resetting cursor: %w", err)
	}
	return requireOneRow(res, "reset cursor")
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: checking rows affected: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: expected to affect 1 row, affected %d", op, n)
	}
	return nil
}
