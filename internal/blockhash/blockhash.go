// Package blockhash implements the Block Hash Store (spec §4.2): a bounded
// recent-block window of (chain_id, block_number) -> block_hash, used to
// detect reorgs before every fetch window.
package blockhash

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/russross/meddler"
)

// maxBindParams is Postgres's hard limit on parameters per statement;
// batches are chunked so no statement binds more than this (spec §4.2).
const maxBindParams = 65535

// Record is one stored block hash.
type Record struct {
	ChainID     uint64      `meddler:"chain_id"`
	BlockNumber uint64      `meddler:"block_number"`
	BlockHash   common.Hash `meddler:"block_hash,hash"`
}

const columnsPerRow = 3

// Store wraps the schema-qualified _block_hashes table.
type Store struct {
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// New creates a Store bound to schema.db.
func New(database *sql.DB, schema string, log *logger.Logger) *Store {
	return &Store{db: database, schema: schema, log: log.WithComponent("block-hash-store")}
}

func (s *Store) table() string { return s.schema + "._block_hashes" }

// InsertBatch inserts records with ON CONFLICT DO NOTHING, chunked to stay
// under the database's bind-parameter ceiling (spec §4.2).
func (s *Store) InsertBatch(ctx context.Context, tx *sql.Tx, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	rowsPerChunk := maxBindParams / columnsPerRow
	for start := 0; start < len(records); start += rowsPerChunk {
		end := min(start+rowsPerChunk, len(records))
		if err := s.insertChunk(ctx, tx, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertChunk(ctx context.Context, tx *sql.Tx, records []Record) error {
	values := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*columnsPerRow)

	for i, r := range records {
		base := i * columnsPerRow
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, r.ChainID, r.BlockNumber, r.BlockHash.Hex())
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (chain_id, block_number, block_hash) VALUES %s
		 ON CONFLICT (chain_id, block_number) DO NOTHING`,
		s.table(), strings.Join(values, ", "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting block hash batch: %w", err)
	}
	return nil
}

// Get returns the stored hash for (chainID, blockNumber), or sql.ErrNoRows.
func (s *Store) Get(tx *sql.Tx, chainID, blockNumber uint64) (common.Hash, error) {
	var rec Record
	err := meddler.QueryRow(tx, &rec, fmt.Sprintf(
		`SELECT * FROM %s WHERE chain_id = $1 AND block_number = $2`, s.table()),
		chainID, blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	return rec.BlockHash, nil
}

// DeleteFromBlock removes all rows with block_number >= blockNumber for
// chainID, used by reorg rewind.
func (s *Store) DeleteFromBlock(ctx context.Context, tx *sql.Tx, chainID, blockNumber uint64) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE chain_id = $1 AND block_number >= $2`, s.table()),
		chainID, blockNumber)
	if err != nil {
		return fmt.Errorf("deleting block hashes from block %d: %w", blockNumber, err)
	}
	return nil
}

// DeleteBefore prunes rows with block_number < blockNumber for chainID.
func (s *Store) DeleteBefore(ctx context.Context, chainID, blockNumber uint64) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE chain_id = $1 AND block_number < $2`, s.table()),
		chainID, blockNumber)
	if err != nil {
		return 0, fmt.Errorf("pruning block hashes before %d: %w", blockNumber, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking pruned row count: %w", err)
	}
	if n > 0 {
		s.log.Debugw("pruned old block hashes", "chain_id", chainID, "before_block", blockNumber, "count", n)
	}
	return n, nil
}
