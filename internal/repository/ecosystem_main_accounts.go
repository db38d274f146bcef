package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

// EcosystemMainAccount is a typed read of the ecosystem_main_accounts table.
type EcosystemMainAccount struct {
	AccountID         string          `meddler:"account_id,pk"`
	OwnerAddress      *common.Address `meddler:"owner_address,address"`
	LastEventBlock    uint64          `meddler:"last_event_block"`
	LastEventTxIndex  uint32          `meddler:"last_event_tx_index"`
	LastEventLogIndex uint32          `meddler:"last_event_log_index"`
}

// EcosystemMainAccounts wraps the schema-qualified ecosystem_main_accounts
// table.
type EcosystemMainAccounts struct {
	table  *Table
	db     *sql.DB
	schema string
	log    *logger.Logger
}

// NewEcosystemMainAccounts constructs a repository bound to schema.db.
func NewEcosystemMainAccounts(database *sql.DB, schema string, log *logger.Logger) *EcosystemMainAccounts {
	return &EcosystemMainAccounts{
		table:  NewTable(database, schema, "ecosystem_main_accounts", "account_id", []string{"owner_address"}),
		db:     database,
		schema: schema,
		log:    log.WithComponent("ecosystem-main-accounts-repository"),
	}
}

// Upsert records a creation or field-changing event for accountID.
func (r *EcosystemMainAccounts) Upsert(ctx context.Context, tx *sql.Tx, accountID string, fields map[string]interface{}, pointer EventPointer) error {
	return r.table.upsertPartial(ctx, tx, accountID, fields, pointer)
}

// SetOwner applies an OwnerUpdated-style event.
func (r *EcosystemMainAccounts) SetOwner(ctx context.Context, tx *sql.Tx, accountID string, ownerAddress *common.Address, pointer EventPointer) error {
	return r.table.update(ctx, tx, accountID, map[string]interface{}{"owner_address": addressToDB(ownerAddress)}, pointer)
}

// FindByID returns the ecosystem main account, or sql.ErrNoRows if absent.
func (r *EcosystemMainAccounts) FindByID(ctx context.Context, accountID string) (*EcosystemMainAccount, error) {
	var a EcosystemMainAccount
	err := meddler.QueryRow(r.db, &a, fmt.Sprintf(
		`SELECT * FROM %s.ecosystem_main_accounts WHERE account_id = $1`, r.schema), accountID)
	if err != nil {
		return nil, fmt.Errorf("finding ecosystem main account %s: %w", accountID, err)
	}
	return &a, nil
}
