package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/russross/meddler"
)

// SubList is a typed read of the sub_lists table.
type SubList struct {
	AccountID         string  `meddler:"account_id,pk"`
	ParentAccountID   *string `meddler:"parent_account_id"`
	LastEventBlock    uint64  `meddler:"last_event_block"`
	LastEventTxIndex  uint32  `meddler:"last_event_tx_index"`
	LastEventLogIndex uint32  `meddler:"last_event_log_index"`
}

// SubLists wraps the schema-qualified sub_lists table.
type SubLists struct {
	table  *Table
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// NewSubLists constructs a SubLists repository bound to schema.db.
func NewSubLists(database *sql.DB, schema string, log *logger.Logger) *SubLists {
	return &SubLists{
		table:  NewTable(database, schema, "sub_lists", "account_id", []string{"parent_account_id"}),
		db:     database,
		schema: schema,
		log:    log.WithComponent("sub-lists-repository"),
	}
}

// Upsert records a creation or field-changing event for accountID. The
// sub-list's parent link is established at creation via sub_list_link
// splits rather than through this column in most flows,
// but parent_account_id is kept for direct SubListCreated-style events.
func (r *SubLists) Upsert(ctx context.Context, tx *sql.Tx, accountID string, fields map[string]interface{}, pointer EventPointer) error {
	return r.table.upsertPartial(ctx, tx, accountID, fields, pointer)
}

// FindByID returns the sub list, or sql.ErrNoRows if absent.
func (r *SubLists) FindByID(ctx context.Context, accountID string) (*SubList, error) {
	var s SubList
	err := meddler.QueryRow(r.db, &s, fmt.Sprintf(
		`SELECT * FROM %s.sub_lists WHERE account_id = $1`, r.schema), accountID)
	if err != nil {
		return nil, fmt.Errorf("finding sub list %s: %w", accountID, err)
	}
	return &s, nil
}
