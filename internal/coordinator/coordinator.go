// Package coordinator implements the Indexer Coordinator (spec §4.9): it
// wires the Lock Manager, decoder, repositories, fetcher, and dispatcher for
// one (schema, chain) process, then runs the fetcher and dispatcher as
// cooperating long-lived tasks until a shutdown signal or a fatal error.
// Grounded on the teacher's cmd/indexer/main.go wiring/signal-handling
// sequence, generalized from a single direct RunE body into a reusable
// component with golang.org/x/sync/errgroup supervising the tasks.
package coordinator

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/drips-network/dripfeed-sub001/internal/blockhash"
	"github.com/drips-network/dripfeed-sub001/internal/config"
	"github.com/drips-network/dripfeed-sub001/internal/cursor"
	"github.com/drips-network/dripfeed-sub001/internal/db"
	"github.com/drips-network/dripfeed-sub001/internal/decoder"
	"github.com/drips-network/dripfeed-sub001/internal/dispatcher"
	"github.com/drips-network/dripfeed-sub001/internal/eventlog"
	"github.com/drips-network/dripfeed-sub001/internal/fetcher"
	"github.com/drips-network/dripfeed-sub001/internal/lock"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/internal/metrics"
	"github.com/drips-network/dripfeed-sub001/internal/monitor"
	"github.com/drips-network/dripfeed-sub001/internal/rpc"
	"golang.org/x/sync/errgroup"
)

// Deps are the pieces a caller must supply that depend on domain knowledge
// the coordinator itself has none of: which contracts to watch and how
// their events map to handlers.
type Deps struct {
	Bindings []decoder.ContractBinding
	Registry dispatcher.Registry
}

// Coordinator owns one (schema, chain) indexing process end to end.
type Coordinator struct {
	cfg    config.Config
	schema string
	db     *sql.DB
	lock   *lock.Manager
	log    *logger.Logger

	fetcher    *fetcher.Fetcher
	dispatcher *dispatcher.Dispatcher
	monitor    *monitor.Monitor
}

// New builds every component needed for one indexing process but does not
// yet acquire the advisory lock or start any task; call Run for that.
func New(ctx context.Context, cfg config.Config, schema, databaseURL string, deps Deps, log *logger.Logger) (*Coordinator, error) {
	if err := config.ValidateSchema(schema); err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	pool, err := db.Open(ctx, databaseURL, db.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("coordinator: opening database pool: %w", err)
	}

	lockManager, err := lock.Acquire(ctx, func(ctx context.Context) (*sql.Conn, func() error, error) {
		return db.NewDedicatedConn(ctx, databaseURL)
	}, schema, cfg.Chain.ChainID, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("coordinator: acquiring lock: %w", err)
	}

	rpcClient, err := newRPCClient(ctx, cfg)
	if err != nil {
		_ = lockManager.Release(ctx)
		pool.Close()
		return nil, fmt.Errorf("coordinator: connecting to rpc: %w", err)
	}

	head, err := rpcClient.GetBlockNumber(ctx)
	if err != nil {
		_ = lockManager.Release(ctx)
		pool.Close()
		return nil, fmt.Errorf("coordinator: checking rpc head: %w", err)
	}
	if cfg.Chain.StartBlock > head {
		_ = lockManager.Release(ctx)
		pool.Close()
		return nil, fmt.Errorf("coordinator: configured start block %d is ahead of rpc head %d",
			cfg.Chain.StartBlock, head)
	}

	dec, err := decoder.New(deps.Bindings, deps.Registry.HandlerNames())
	if err != nil {
		_ = lockManager.Release(ctx)
		pool.Close()
		return nil, fmt.Errorf("coordinator: building decoder: %w", err)
	}
	if err := dec.BindSchemaChain(schema, cfg.Chain.ChainID); err != nil {
		_ = lockManager.Release(ctx)
		pool.Close()
		return nil, fmt.Errorf("coordinator: binding schema to chain: %w", err)
	}

	cursors := cursor.New(pool, schema, log)
	hashes := blockhash.New(pool, schema, log)
	events := eventlog.New(pool, schema, log)

	addresses := make([]common.Address, 0, len(deps.Bindings))
	for _, b := range deps.Bindings {
		addresses = append(addresses, b.Address)
	}

	fetch := fetcher.New(fetcher.Config{
		ChainID:       cfg.Chain.ChainID,
		StartBlock:    cfg.Chain.StartBlock,
		Confirmations: cfg.Chain.Confirmations,
		FetchWindow:   cfg.Chain.FetchWindow,
		ReorgWindow:   cfg.Chain.ReorgWindow,
		PollInterval:  cfg.Chain.PollIntervalOrDefault(),
	}, rpcClient, pool, cursors, hashes, events, dec, addresses, log)

	dispatch := dispatcher.New(dispatcher.Config{ChainID: cfg.Chain.ChainID}, pool, events, deps.Registry, log)

	mon := monitor.New(cfg.Chain.ChainID, rpcClient, cursors, log)

	return &Coordinator{
		cfg:        cfg,
		schema:     schema,
		db:         pool,
		lock:       lockManager,
		log:        log.WithComponent("coordinator"),
		fetcher:    fetch,
		dispatcher: dispatch,
		monitor:    mon,
	}, nil
}

// Run launches the fetcher, dispatcher, and monitor as cooperating tasks
// under ctx, returning once every task has exited. A task returning a
// non-nil error is fatal; the whole group is cancelled and the error propagated
// (spec §4.9, §7: process exits 1 on fatal error).
func (c *Coordinator) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return c.fetcher.Run(groupCtx) })
	group.Go(func() error { return c.dispatcher.Run(groupCtx) })
	group.Go(func() error { return c.monitor.Run(groupCtx) })

	err := group.Wait()
	c.log.Event("shutdown_complete").Infow("coordinator tasks stopped", "error", err)
	return err
}

func newRPCClient(ctx context.Context, cfg config.Config) (*rpc.Client, error) {
	return rpc.NewClient(ctx, cfg.Chain.RPCURL, rpc.DefaultRetryConfig())
}

// Close releases the advisory lock and closes the database pool. Always
// call after Run returns, on every exit path.
func (c *Coordinator) Close(ctx context.Context) error {
	lockErr := c.lock.Release(ctx)
	dbErr := c.db.Close()
	metrics.ComponentHealthSet("coordinator", false)
	if lockErr != nil {
		return fmt.Errorf("releasing lock: %w", lockErr)
	}
	return dbErr
}
