package repository_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/internal/repository"
	"github.com/drips-network/dripfeed-sub001/tests/helpers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func addr(hex string) *common.Address {
	a := common.HexToAddress(hex)
	return &a
}

func TestProjects_VerificationStatusDerivation(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	log := logger.Nop()
	repo := repository.NewProjects(database, schema, log)
	ctx := context.Background()

	withTx := func(t *testing.T, fn func(tx *sql.Tx) error) {
		t.Helper()
		tx, err := database.Begin()
		require.NoError(t, err)
		require.NoError(t, fn(tx))
		require.NoError(t, tx.Commit())
	}

	accountID := "100"

	withTx(t, func(tx *sql.Tx) error {
		return repo.UpsertOwnerChange(ctx, tx, accountID, addr("0x1234567890123456789012345678901234567890"), repository.EventPointer{Block: 1})
	})
	p, err := repo.FindByID(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, repository.VerificationPendingMetadata, p.VerificationStatus)

	withTx(t, func(tx *sql.Tx) error {
		return repo.UpsertMetadata(ctx, tx, accountID, ptr("0xhash"), repository.EventPointer{Block: 2})
	})
	p, err = repo.FindByID(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, repository.VerificationClaimed, p.VerificationStatus)
}

func TestProjects_StalePointerIsNoOp(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	log := logger.Nop()
	repo := repository.NewProjects(database, schema, log)
	ctx := context.Background()
	accountID := "200"
	original := addr("0x1111111111111111111111111111111111111111")
	stale := addr("0x2222222222222222222222222222222222222222")

	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.UpsertOwnerChange(ctx, tx, accountID, original, repository.EventPointer{Block: 10}))
	require.NoError(t, tx.Commit())

	tx, err = database.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.UpsertOwnerChange(ctx, tx, accountID, stale, repository.EventPointer{Block: 5}))
	require.NoError(t, tx.Commit())

	p, err := repo.FindByID(ctx, accountID)
	require.NoError(t, err)
	require.Equal(t, *original, *p.OwnerAddress)
}
