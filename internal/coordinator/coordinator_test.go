package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/config"
	"github.com/drips-network/dripfeed-sub001/internal/coordinator"
	"github.com/drips-network/dripfeed-sub001/internal/decoder"
	"github.com/drips-network/dripfeed-sub001/internal/dispatcher"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/tests/helpers"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_RunsUntilCancelled(t *testing.T) {
	_, schema := helpers.NewTestSchema(t)
	databaseURL := helpers.TestDatabaseURL(t)
	chain := helpers.StartAnvil(t)

	cfg := config.Config{
		Chain: config.Chain{
			ChainID:       chain.ChainID.Uint64(),
			RPCURL:        chain.URL,
			Confirmations: 0,
			FetchWindow:   100,
			ReorgWindow:   64,
			PollInterval:  config.Duration(50 * time.Millisecond),
		},
		Logging: config.Logging{Level: "ERROR"},
	}

	log := logger.Nop()
	deps := coordinator.Deps{
		Bindings: []decoder.ContractBinding{},
		Registry: dispatcher.Registry{},
	}

	ctx := context.Background()
	coord, err := coordinator.New(ctx, cfg, schema, databaseURL, deps, log)
	require.NoError(t, err)
	defer func() { require.NoError(t, coord.Close(context.Background())) }()

	runCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	err = coord.Run(runCtx)
	require.NoError(t, err)
}

func TestCoordinator_RejectsStartBlockAheadOfHead(t *testing.T) {
	_, schema := helpers.NewTestSchema(t)
	databaseURL := helpers.TestDatabaseURL(t)
	chain := helpers.StartAnvil(t)

	cfg := config.Config{
		Chain: config.Chain{
			ChainID:    chain.ChainID.Uint64(),
			RPCURL:     chain.URL,
			StartBlock: 10_000_000,
		},
		Logging: config.Logging{Level: "ERROR"},
	}
	cfg.ApplyDefaults()

	log := logger.Nop()
	deps := coordinator.Deps{Bindings: []decoder.ContractBinding{}, Registry: dispatcher.Registry{}}

	_, err := coordinator.New(context.Background(), cfg, schema, databaseURL, deps, log)
	require.Error(t, err)
}
