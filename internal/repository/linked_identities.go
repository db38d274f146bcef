package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

// LinkedIdentity is a typed read of the linked_identities table.
type LinkedIdentity struct {
	AccountID         string          `meddler:"account_id,pk"`
	OwnerAddress      *common.Address `meddler:"owner_address,address"`
	IdentityType      *string         `meddler:"identity_type"`
	LastEventBlock    uint64          `meddler:"last_event_block"`
	LastEventTxIndex  uint32          `meddler:"last_event_tx_index"`
	LastEventLogIndex uint32          `meddler:"last_event_log_index"`
}

// LinkedIdentities wraps the schema-qualified linked_identities table.
type LinkedIdentities struct {
	table  *Table
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// NewLinkedIdentities constructs a repository bound to schema.db.
func NewLinkedIdentities(database *sql.DB, schema string, log *logger.Logger) *LinkedIdentities {
	return &LinkedIdentities{
		table:  NewTable(database, schema, "linked_identities", "account_id", []string{"owner_address", "identity_type"}),
		db:     database,
		schema: schema,
		log:    log.WithComponent("linked-identities-repository"),
	}
}

// Upsert records a creation or field-changing event for accountID.
func (r *LinkedIdentities) Upsert(ctx context.Context, tx *sql.Tx, accountID string, fields map[string]interface{}, pointer EventPointer) error {
	return r.table.upsertPartial(ctx, tx, accountID, fields, pointer)
}

// SetOwner applies an OwnerUpdated-style event.
func (r *LinkedIdentities) SetOwner(ctx context.Context, tx *sql.Tx, accountID string, ownerAddress *common.Address, pointer EventPointer) error {
	return r.table.update(ctx, tx, accountID, map[string]interface{}{"owner_address": addressToDB(ownerAddress)}, pointer)
}

// FindByID returns the linked identity, or sql.ErrNoRows if absent.
func (r *LinkedIdentities) FindByID(ctx context.Context, accountID string) (*LinkedIdentity, error) {
	var l LinkedIdentity
	err := meddler.QueryRow(r.db, &l, fmt.Sprintf(
		`SELECT * FROM %s.linked_identities WHERE account_id = $1`, r.schema), accountID)
	if err != nil {
		return nil, fmt.Errorf("finding linked identity %s: %w", accountID, err)
	}
	return &l, nil
}
