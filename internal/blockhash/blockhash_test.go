package blockhash_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/drips-network/dripfeed-sub001/internal/blockhash"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/tests/helpers"
	"github.com/stretchr/testify/require"
)

func withTx(t *testing.T, database *sql.DB, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := database.Begin()
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func TestStore_InsertGetDeleteFromBlock(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	store := blockhash.New(database, schema, logger.Nop())
	ctx := context.Background()

	records := []blockhash.Record{
		{ChainID: 1, BlockNumber: 100, BlockHash: common.HexToHash("0xAAAA")},
		{ChainID: 1, BlockNumber: 101, BlockHash: common.HexToHash("0xBBBB")},
		{ChainID: 1, BlockNumber: 102, BlockHash: common.HexToHash("0xCCCC")},
	}

	withTx(t, database, func(tx *sql.Tx) {
		require.NoError(t, store.InsertBatch(ctx, tx, records))
		// Re-inserting is a no-op (ON CONFLICT DO NOTHING).
		require.NoError(t, store.InsertBatch(ctx, tx, records))
	})

	withTx(t, database, func(tx *sql.Tx) {
		hash, err := store.Get(tx, 1, 101)
		require.NoError(t, err)
		require.Equal(t, common.HexToHash("0xBBBB"), hash)

		_, err = store.Get(tx, 1, 999)
		require.ErrorIs(t, err, sql.ErrNoRows)
	})

	withTx(t, database, func(tx *sql.Tx) {
		require.NoError(t, store.DeleteFromBlock(ctx, tx, 1, 101))
	})

	withTx(t, database, func(tx *sql.Tx) {
		_, err := store.Get(tx, 1, 100)
		require.NoError(t, err)
		_, err = store.Get(tx, 1, 101)
		require.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestStore_DeleteBefore(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	store := blockhash.New(database, schema, logger.Nop())
	ctx := context.Background()

	records := []blockhash.Record{
		{ChainID: 2, BlockNumber: 10, BlockHash: common.HexToHash("0x1")},
		{ChainID: 2, BlockNumber: 20, BlockHash: common.HexToHash("0x2")},
		{ChainID: 2, BlockNumber: 30, BlockHash: common.HexToHash("0x3")},
	}
	withTx(t, database, func(tx *sql.Tx) {
		require.NoError(t, store.InsertBatch(ctx, tx, records))
	})

	n, err := store.DeleteBefore(ctx, 2, 20)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	withTx(t, database, func(tx *sql.Tx) {
		_, err := store.Get(tx, 2, 10)
		require.ErrorIs(t, err, sql.ErrNoRows)
		_, err = store.Get(tx, 2, 20)
		require.NoError(t, err)
	})
}
