package cursor_test

import (
	"context"
	"testing"

	"github.com/drips-network/dripfeed-sub001/internal/cursor"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/tests/helpers"
	"github.com/stretchr/testify/require"
)

func TestStore_InitializeGetAdvanceReset(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	store := cursor.New(database, schema, logger.Nop())
	ctx := context.Background()

	const chainID = 1

	require.NoError(t, store.InitializeIfAbsent(ctx, chainID, 100))
	// Re-initializing is a no-op.
	require.NoError(t, store.InitializeIfAbsent(ctx, chainID, 999))

	state, err := store.Get(chainID)
	require.NoError(t, err)
	require.EqualValues(t, 100, state.FetchedToBlock)

	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.Advance(ctx, tx, chainID, 150))
	require.NoError(t, tx.Commit())

	state, err = store.Get(chainID)
	require.NoError(t, err)
	require.EqualValues(t, 150, state.FetchedToBlock)

	tx, err = database.Begin()
	require.NoError(t, err)
	locked, err := store.GetForUpdate(tx, chainID)
	require.NoError(t, err)
	require.EqualValues(t, 150, locked.FetchedToBlock)
	require.NoError(t, store.Reset(ctx, tx, chainID, 120))
	require.NoError(t, tx.Commit())

	state, err = store.Get(chainID)
	require.NoError(t, err)
	require.EqualValues(t, 120, state.FetchedToBlock)
}
