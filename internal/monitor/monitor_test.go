package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/cursor"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/internal/monitor"
	"github.com/drips-network/dripfeed-sub001/internal/rpc"
	"github.com/drips-network/dripfeed-sub001/tests/helpers"
	"github.com/stretchr/testify/require"
)

func TestMonitor_RunsUntilCancelled(t *testing.T) {
	database, schema := helpers.NewTestSchema(t)
	chain := helpers.StartAnvil(t)

	ctx := context.Background()
	rpcClient, err := rpc.NewClient(ctx, chain.URL, rpc.DefaultRetryConfig())
	require.NoError(t, err)

	cursors := cursor.New(database, schema, logger.Nop())
	require.NoError(t, cursors.InitializeIfAbsent(ctx, chain.ChainID.Uint64(), 0))

	m := monitor.New(chain.ChainID.Uint64(), rpcClient, cursors, logger.Nop())

	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	require.NoError(t, m.Run(runCtx))
}
