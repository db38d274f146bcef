package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

// Verification status values derived from (owner_address, metadata_hash)
// presence, never set directly by a handler (spec §4.8).
const (
	VerificationUnclaimed        = "unclaimed"
	VerificationPendingMetadata  = "pending_metadata"
	VerificationClaimed          = "claimed"
)

// Project is a typed read of the projects table.
type Project struct {
	AccountID          string          `meddler:"account_id,pk"`
	OwnerAddress       *common.Address `meddler:"owner_address,address"`
	MetadataHash       *string         `meddler:"metadata_hash"`
	VerificationStatus string          `meddler:"verification_status"`
	LastEventBlock     uint64          `meddler:"last_event_block"`
	LastEventTxIndex   uint32          `meddler:"last_event_tx_index"`
	LastEventLogIndex  uint32          `meddler:"last_event_log_index"`
}

// Projects wraps the schema-qualified projects table.
type Projects struct {
	table *Table
	db    *sql.DB
	schema string
	log   *logger.Logger
}

// NewProjects constructs a Projects repository bound to schema.db.
func NewProjects(database *sql.DB, schema string, log *logger.Logger) *Projects {
	return &Projects{
		table:  NewTable(database, schema, "projects", "account_id", []string{"owner_address", "metadata_hash"}),
		db:     database,
		schema: schema,
		log:    log.WithComponent("projects-repository"),
	}
}

func deriveVerificationStatus(ownerAddress *common.Address, metadataHash *string) string {
	switch {
	case ownerAddress != nil && metadataHash != nil:
		return VerificationClaimed
	case ownerAddress != nil:
		return VerificationPendingMetadata
	default:
		return VerificationUnclaimed
	}
}

// UpsertOwnerChange records an OwnerUpdated-style event: sets owner_address
// (and recomputes verification_status) as of pointer. verification_status
// is never accepted as an input field; it is always derived (spec §4.8).
func (r *Projects) UpsertOwnerChange(ctx context.Context, tx *sql.Tx, accountID string, ownerAddress *common.Address, pointer EventPointer) error {
	existing, err := r.findForUpdate(tx, accountID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var metadataHash *string
	if existing != nil {
		metadataHash = existing.MetadataHash
	}

	fields := map[string]interface{}{
		"owner_address":       addressToDB(ownerAddress),
		"verification_status": deriveVerificationStatus(ownerAddress, metadataHash),
	}
	return r.table.upsertPartial(ctx, tx, accountID, fields, pointer)
}

// UpsertMetadata records a MetadataUpdated-style event: sets metadata_hash
// (and recomputes verification_status) as of pointer.
func (r *Projects) UpsertMetadata(ctx context.Context, tx *sql.Tx, accountID string, metadataHash *string, pointer EventPointer) error {
	existing, err := r.findForUpdate(tx, accountID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var ownerAddress *common.Address
	if existing != nil {
		ownerAddress = existing.OwnerAddress
	}

	fields := map[string]interface{}{
		"metadata_hash":       metadataHash,
		"verification_status": deriveVerificationStatus(ownerAddress, metadataHash),
	}
	return r.table.upsertPartial(ctx, tx, accountID, fields, pointer)
}

func (r *Projects) findForUpdate(tx *sql.Tx, accountID string) (*Project, error) {
	var p Project
	err := meddler.QueryRow(tx, &p, fmt.Sprintf(
		`SELECT * FROM %s.projects WHERE account_id = $1 FOR UPDATE`, r.schema), accountID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByID returns the project, or sql.ErrNoRows if absent.
func (r *Projects) FindByID(ctx context.Context, accountID string) (*Project, error) {
	var p Project
	err := meddler.QueryRow(r.db, &p, fmt.Sprintf(
		`SELECT * FROM %s.projects WHERE account_id = $1`, r.schema), accountID)
	if err != nil {
		return nil, fmt.Errorf("finding project %s: %w", accountID, err)
	}
	return &p, nil
}
