package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/russross/meddler"
)

// Deadline is a typed read of the deadlines table.
type Deadline struct {
	AccountID         string     `meddler:"account_id,pk"`
	DeadlineTimestamp *time.Time `meddler:"deadline_timestamp"`
	LastEventBlock    uint64     `meddler:"last_event_block"`
	LastEventTxIndex  uint32     `meddler:"last_event_tx_index"`
	LastEventLogIndex uint32     `meddler:"last_event_log_index"`
}

// Deadlines wraps the schema-qualified deadlines table.
type Deadlines struct {
	table  *Table
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// NewDeadlines constructs a Deadlines repository bound to schema.db.
func NewDeadlines(database *sql.DB, schema string, log *logger.Logger) *Deadlines {
	return &Deadlines{
		table:  NewTable(database, schema, "deadlines", "account_id", []string{"deadline_timestamp"}),
		db:     database,
		schema: schema,
		log:    log.WithComponent("deadlines-repository"),
	}
}

// Upsert records a creation or field-changing event for accountID.
func (r *Deadlines) Upsert(ctx context.Context, tx *sql.Tx, accountID string, fields map[string]interface{}, pointer EventPointer) error {
	return r.table.upsertPartial(ctx, tx, accountID, fields, pointer)
}

// FindByID returns the deadline, or sql.ErrNoRows if absent.
func (r *Deadlines) FindByID(ctx context.Context, accountID string) (*Deadline, error) {
	var d Deadline
	err := meddler.QueryRow(r.db, &d, fmt.Sprintf(
		`SELECT * FROM %s.deadlines WHERE account_id = $1`, r.schema), accountID)
	if err != nil {
		return nil, fmt.Errorf("finding deadline %s: %w", accountID, err)
	}
	return &d, nil
}
