// Package eventlog implements the Event Log Store (spec §4.4): a durable
// queue of decoded events with a pending/processed/failed status machine,
// keyed uniquely by (chain_id, block_number, tx_index, log_index).
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/russross/meddler"
)

// maxBindParams mirrors blockhash's cap on bound parameters per statement.
const maxBindParams = 65535

const insertColumnsPerRow = 11

// Status values for the event state machine (spec §4.7).
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Event is one decoded, durably queued log.
type Event struct {
	ID              int64           `meddler:"id,pk"`
	ChainID         uint64          `meddler:"chain_id"`
	BlockNumber     uint64          `meddler:"block_number"`
	TxIndex         uint            `meddler:"tx_index"`
	LogIndex        uint            `meddler:"log_index"`
	BlockHash       string          `meddler:"block_hash"`
	BlockTimestamp  time.Time       `meddler:"block_timestamp"`
	TransactionHash string          `meddler:"transaction_hash"`
	ContractAddress string          `meddler:"contract_address"`
	EventName       string          `meddler:"event_name"`
	EventSig        string          `meddler:"event_sig"`
	Args            json.RawMessage `meddler:"args,json"`
	Status          string          `meddler:"status"`
	ErrorMessage    *string         `meddler:"error_message"`
	ProcessedAt     *time.Time      `meddler:"processed_at"`
}

// Store wraps the schema-qualified _events table.
type Store struct {
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// New creates a Store bound to schema.db.
func New(database *sql.DB, schema string, log *logger.Logger) *Store {
	return &Store{db: database, schema: schema, log: log.WithComponent("event-log-store")}
}

func (s *Store) table() string { return s.schema + "._events" }

// InsertBatch inserts decoded events with ON CONFLICT (chain, block, tx,
// log) DO NOTHING, giving idempotency across fetcher retries (spec §4.4).
func (s *Store) InsertBatch(ctx context.Context, tx *sql.Tx, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	rowsPerChunk := maxBindParams / insertColumnsPerRow
	for start := 0; start < len(events); start += rowsPerChunk {
		end := min(start+rowsPerChunk, len(events))
		if err := s.insertChunk(ctx, tx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertChunk(ctx context.Context, tx *sql.Tx, events []Event) error {
	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*insertColumnsPerRow)

	for i, e := range events {
		base := i * insertColumnsPerRow
		placeholders := make([]string, insertColumnsPerRow)
		for j := 0; j < insertColumnsPerRow; j++ {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")

		args = append(args,
			e.ChainID, e.BlockNumber, e.TxIndex, e.LogIndex,
			e.BlockHash, e.BlockTimestamp, e.TransactionHash,
			e.ContractAddress, e.EventName, e.EventSig, []byte(e.Args),
		)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (chain_id, block_number, tx_index, log_index, block_hash,
			block_timestamp, transaction_hash, contract_address, event_name, event_sig, args)
		 VALUES %s
		 ON CONFLICT (chain_id, block_number, tx_index, log_index) DO NOTHING`,
		s.table(), strings.Join(values, ", "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting event batch: %w", err)
	}
	return nil
}

// GetNextPendingBatch returns up to n pending events ordered by
// (block, tx, log), row-locked with FOR UPDATE SKIP LOCKED so concurrent
// dispatchers (today one) never contend on the same row (spec §4.4).
func (s *Store) GetNextPendingBatch(tx *sql.Tx, chainID uint64, n int) ([]Event, error) {
	var events []Event
	err := meddler.QueryAll(tx, &events, fmt.Sprintf(
		`SELECT * FROM %s WHERE chain_id = $1 AND status = 'pending'
		 ORDER BY block_number, tx_index, log_index
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`, s.table()),
		chainID, n)
	if err != nil {
		return nil, fmt.Errorf("getting next pending batch: %w", err)
	}
	return events, nil
}

// MarkProcessed transitions an event to processed. Fails loudly if no row
// was updated, since that would mean the event was lost (spec §4.4).
func (s *Store) MarkProcessed(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET status = 'processed', processed_at = now(), error_message = NULL
		 WHERE id = $1 AND status = 'pending'`, s.table()), id)
	if err != nil {
		return fmt.Errorf("marking event %d processed: %w", id, err)
	}
	return requireOneRow(res, fmt.Sprintf("mark event %d processed", id))
}

// MarkFailed transitions an event to failed with the handler's error
// message. The dispatcher halts at this event until operator intervention.
func (s *Store) MarkFailed(ctx context.Context, tx *sql.Tx, id int64, errMsg string) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET status = 'failed', processed_at = now(), error_message = $1
		 WHERE id = $2 AND status = 'pending'`, s.table()), errMsg, id)
	if err != nil {
		return fmt.Errorf("marking event %d failed: %w", id, err)
	}
	return requireOneRow(res, fmt.Sprintf("mark event %d failed", id))
}

// DeleteFromBlock removes events with block_number >= blockNumber, used by
// reorg rewind.
func (s *Store) DeleteFromBlock(ctx context.Context, tx *sql.Tx, chainID, blockNumber uint64) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE chain_id = $1 AND block_number >= $2`, s.table()),
		chainID, blockNumber)
	if err != nil {
		return fmt.Errorf("deleting events from block %d: %w", blockNumber, err)
	}
	return nil
}

// HasFailed reports whether any event for chainID is in the failed state.
// The dispatcher checks this before draining its next batch: since events
// dispatch in strict order, a failed event is always the oldest unresolved
// one, and the dispatcher must halt until an operator clears it (spec §4.7).
func (s *Store) HasFailed(ctx context.Context, chainID uint64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE chain_id = $1 AND status = 'failed')`, s.table()),
		chainID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking for failed events: %w", err)
	}
	return exists, nil
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: checking rows affected: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%s: expected to affect 1 row, affected %d (event missing or not pending)", op, n)
	}
	return nil
}
