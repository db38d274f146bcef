package dispatcher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/dispatcher"
	"github.com/drips-network/dripfeed-sub001/internal/eventlog"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/tests/helpers"
	"github.com/stretchr/testify/require"
)

func sampleEvent(block uint64, tx, logIdx uint, contract, name string) eventlog.Event {
	return eventlog.Event{
		ChainID:         1,
		BlockNumber:     block,
		TxIndex:         tx,
		LogIndex:        logIdx,
		BlockHash:       "0xblock",
		BlockTimestamp:  time.Unix(1700000000, 0).UTC(),
		TransactionHash: "0xtx",
		ContractAddress: contract,
		EventName:       name,
		EventSig:        "0xsig",
		Args:            []byte(`{}`),
	}
}

func TestDispatcher_ProcessesInOrderAndHaltsOnFailure(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	log := logger.Nop()
	store := eventlog.New(database, schema, log)
	ctx := context.Background()

	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.InsertBatch(ctx, tx, []eventlog.Event{
		sampleEvent(100, 0, 0, "0xcontract", "Given"),
		sampleEvent(101, 0, 0, "0xcontract", "Given"),
		sampleEvent(102, 0, 0, "0xcontract", "Given"),
	}))
	require.NoError(t, tx.Commit())

	var order []uint64
	registry := dispatcher.Registry{
		"0xcontract": {
			"Given": func(hctx *dispatcher.HandlerContext) error {
				order = append(order, hctx.Event.BlockNumber)
				if hctx.Event.BlockNumber == 101 {
					return errors.New("boom")
				}
				return nil
			},
		},
	}

	d := dispatcher.New(dispatcher.Config{ChainID: 1, BatchSize: 1}, database, store, registry, log)
	runCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = d.Run(runCtx)

	require.Equal(t, []uint64{100, 101}, order)

	halted, err := store.HasFailed(ctx, 1)
	require.NoError(t, err)
	require.True(t, halted)
}

func TestDispatcher_NoHandlerMarksFailed(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	log := logger.Nop()
	store := eventlog.New(database, schema, log)
	ctx := context.Background()

	tx, err := database.Begin()
	require.NoError(t, err)
	require.NoError(t, store.InsertBatch(ctx, tx, []eventlog.Event{
		sampleEvent(100, 0, 0, "0xcontract", "Unregistered"),
	}))
	require.NoError(t, tx.Commit())

	d := dispatcher.New(dispatcher.Config{ChainID: 1, BatchSize: 1}, database, store, dispatcher.Registry{}, log)
	runCtx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = d.Run(runCtx)

	halted, err := store.HasFailed(ctx, 1)
	require.NoError(t, err)
	require.True(t, halted)
}
