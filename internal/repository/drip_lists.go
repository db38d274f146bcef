package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

// DripList is a typed read of the drip_lists table.
type DripList struct {
	AccountID         string          `meddler:"account_id,pk"`
	OwnerAddress      *common.Address `meddler:"owner_address,address"`
	IsVisible         bool            `meddler:"is_visible"`
	LastEventBlock    uint64          `meddler:"last_event_block"`
	LastEventTxIndex  uint32          `meddler:"last_event_tx_index"`
	LastEventLogIndex uint32          `meddler:"last_event_log_index"`
}

// DripLists wraps the schema-qualified drip_lists table.
type DripLists struct {
	table  *Table
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// NewDripLists constructs a DripLists repository bound to schema.db.
func NewDripLists(database *sql.DB, schema string, log *logger.Logger) *DripLists {
	return &DripLists{
		table:  NewTable(database, schema, "drip_lists", "account_id", []string{"owner_address", "is_visible"}),
		db:     database,
		schema: schema,
		log:    log.WithComponent("drip-lists-repository"),
	}
}

// Upsert records a creation or field-changing event for accountID.
func (r *DripLists) Upsert(ctx context.Context, tx *sql.Tx, accountID string, fields map[string]interface{}, pointer EventPointer) error {
	return r.table.upsertPartial(ctx, tx, accountID, fields, pointer)
}

// SetVisibility applies a VisibilitySet-style event.
func (r *DripLists) SetVisibility(ctx context.Context, tx *sql.Tx, accountID string, isVisible bool, pointer EventPointer) error {
	return r.table.update(ctx, tx, accountID, map[string]interface{}{"is_visible": isVisible}, pointer)
}

// SetOwner applies an OwnerUpdated-style event.
func (r *DripLists) SetOwner(ctx context.Context, tx *sql.Tx, accountID string, ownerAddress *common.Address, pointer EventPointer) error {
	return r.table.update(ctx, tx, accountID, map[string]interface{}{"owner_address": addressToDB(ownerAddress)}, pointer)
}

// FindByID returns the drip list, or sql.ErrNoRows if absent.
func (r *DripLists) FindByID(ctx context.Context, accountID string) (*DripList, error) {
	var d DripList
	err := meddler.QueryRow(r.db, &d, fmt.Sprintf(
		`SELECT * FROM %s.drip_lists WHERE account_id = $1`, r.schema), accountID)
	if err != nil {
		return nil, fmt.Errorf("finding drip list %s: %w", accountID, err)
	}
	return &d, nil
}
