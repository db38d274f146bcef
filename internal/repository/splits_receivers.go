package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/russross/meddler"
)

// SplitsReceiver is a typed read of the splits_receivers table.
type SplitsReceiver struct {
	SenderAccountID               string    `meddler:"sender_account_id,pk"`
	ReceiverAccountID             string    `meddler:"receiver_account_id,pk"`
	RelationshipType              string    `meddler:"relationship_type,pk"`
	SenderAccountType             string    `meddler:"sender_account_type"`
	ReceiverAccountType           string    `meddler:"receiver_account_type"`
	Weight                        int       `meddler:"weight"`
	BlockTimestamp                time.Time `meddler:"block_timestamp"`
	SplitsToRepoDriverSubAccount  bool      `meddler:"splits_to_repo_driver_sub_account"`
	LastEventBlock                uint64    `meddler:"last_event_block"`
	LastEventTxIndex              uint32    `meddler:"last_event_tx_index"`
	LastEventLogIndex             uint32    `meddler:"last_event_log_index"`
}

// SplitsReceiverInput is one row of a SplitsSet-style event: the full new
// receiver list for (senderAccountID, relationshipType).
type SplitsReceiverInput struct {
	ReceiverAccountID            string
	ReceiverAccountType          string
	Weight                       int
	SplitsToRepoDriverSubAccount bool
}

// SplitsReceivers wraps the schema-qualified splits_receivers table.
type SplitsReceivers struct {
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// NewSplitsReceivers constructs a SplitsReceivers repository bound to
// schema.db.
func NewSplitsReceivers(database *sql.DB, schema string, log *logger.Logger) *SplitsReceivers {
	return &SplitsReceivers{db: database, schema: schema, log: log.WithComponent("splits-receivers-repository")}
}

func (r *SplitsReceivers) table() string { return r.schema + ".splits_receivers" }

// ReplaceForSender atomically replaces every receiver for
// (senderAccountID, relationshipType): deletes the prior set and inserts
// the new one in a single transaction (spec §4.8, §9 Open Question:
// delete-then-insert bound to one HandlerContext transaction). Every row
// is validated against the splits rule matrix before the delete runs, so
// a single bad row aborts the whole replace rather than leaving a partial
// set.
func (r *SplitsReceivers) ReplaceForSender(
	ctx context.Context, tx *sql.Tx,
	senderAccountID, senderAccountType, relationshipType string,
	receivers []SplitsReceiverInput,
	blockTimestamp time.Time,
	pointer EventPointer,
) error {
	for _, recv := range receivers {
		if err := ValidateSplitsTriple(senderAccountType, recv.ReceiverAccountType, relationshipType); err != nil {
			return fmt.Errorf("replacing splits for %s: %w", senderAccountID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE sender_account_id = $1 AND relationship_type = $2`, r.table()),
		senderAccountID, relationshipType); err != nil {
		return fmt.Errorf("deleting prior splits receivers for %s: %w", senderAccountID, err)
	}

	if len(receivers) == 0 {
		return nil
	}

	const columnsPerRow = 11
	const maxBindParams = 65535
	rowsPerChunk := maxBindParams / columnsPerRow

	for start := 0; start < len(receivers); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(receivers) {
			end = len(receivers)
		}
		if err := r.insertChunk(ctx, tx, senderAccountID, senderAccountType, relationshipType,
			receivers[start:end], blockTimestamp, pointer); err != nil {
			return err
		}
	}
	return nil
}

func (r *SplitsReceivers) insertChunk(
	ctx context.Context, tx *sql.Tx,
	senderAccountID, senderAccountType, relationshipType string,
	receivers []SplitsReceiverInput,
	blockTimestamp time.Time,
	pointer EventPointer,
) error {
	const columnsPerRow = 11
	values := make([]string, 0, len(receivers))
	args := make([]interface{}, 0, len(receivers)*columnsPerRow)

	for i, recv := range receivers {
		base := i * columnsPerRow
		placeholders := make([]string, columnsPerRow)
		for j := 0; j < columnsPerRow; j++ {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")

		args = append(args,
			senderAccountID, recv.ReceiverAccountID, relationshipType,
			senderAccountType, recv.ReceiverAccountType, recv.Weight,
			blockTimestamp, recv.SplitsToRepoDriverSubAccount,
			pointer.Block, pointer.TxIndex, pointer.LogIndex,
		)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (sender_account_id, receiver_account_id, relationship_type,
			sender_account_type, receiver_account_type, weight, block_timestamp,
			splits_to_repo_driver_sub_account, last_event_block, last_event_tx_index, last_event_log_index)
		 VALUES %s`,
		r.table(), strings.Join(values, ", "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting splits receivers for %s: %w", senderAccountID, err)
	}
	return nil
}

// FindBySender returns every receiver currently configured for
// (senderAccountID, relationshipType).
func (r *SplitsReceivers) FindBySender(ctx context.Context, senderAccountID, relationshipType string) ([]SplitsReceiver, error) {
	var rows []SplitsReceiver
	err := meddler.QueryAll(r.db, &rows, fmt.Sprintf(
		`SELECT * FROM %s WHERE sender_account_id = $1 AND relationship_type = $2
		 ORDER BY receiver_account_id`, r.table()),
		senderAccountID, relationshipType)
	if err != nil {
		return nil, fmt.Errorf("finding splits receivers for %s: %w", senderAccountID, err)
	}
	return rows, nil
}
