// Package monitor implements the Progress Monitor: a read-only task that
// periodically joins the cursor against the current RPC head to report
// indexing lag, throughput, and ETA, and feeds the process's system
// metrics. Grounded on the teacher's internal/indexer/base_indexer.go
// GetStats aggregation shape, stripped of its HTTP query surface since
// this system has no API layer (spec §4.9, Non-goals).
package monitor

import (
	"context"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/cursor"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/internal/metrics"
	"github.com/drips-network/dripfeed-sub001/internal/rpc"
)

const tickInterval = 15 * time.Second

// Monitor periodically reports chain catch-up progress.
type Monitor struct {
	chainID uint64
	rpc     *rpc.Client
	cursors *cursor.Store
	log     *logger.Logger

	lastBlock uint64
	lastAt    time.Time
}

// New constructs a Monitor for one chain.
func New(chainID uint64, rpcClient *rpc.Client, cursors *cursor.Store, log *logger.Logger) *Monitor {
	return &Monitor{chainID: chainID, rpc: rpcClient, cursors: cursors, log: log.WithComponent("monitor")}
}

// Run reports progress every tickInterval until ctx is cancelled. It never
// returns a fatal error: a transient RPC or DB failure is logged and
// skipped, since the monitor is advisory, not load-bearing (spec §5: "a
// telemetry/monitor task" distinct from the fetcher/dispatcher).
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	metrics.UpdateSystemMetrics()

	head, err := m.rpc.GetBlockNumber(ctx)
	if err != nil {
		m.log.Warnw("monitor: failed to read rpc head", "error", err)
		return
	}

	state, err := m.cursors.Get(m.chainID)
	if err != nil {
		m.log.Warnw("monitor: failed to read cursor", "error", err)
		return
	}

	now := time.Now()
	var blocksPerSecond float64
	if !m.lastAt.IsZero() && state.FetchedToBlock > m.lastBlock {
		elapsed := now.Sub(m.lastAt).Seconds()
		if elapsed > 0 {
			blocksPerSecond = float64(state.FetchedToBlock-m.lastBlock) / elapsed
		}
	}
	m.lastBlock = state.FetchedToBlock
	m.lastAt = now

	lag := int64(head) - int64(state.FetchedToBlock)
	metrics.IndexingRate.Set(blocksPerSecond)
	metrics.ComponentHealthSet("fetcher", lag >= 0)

	fields := []interface{}{
		"chain_id", m.chainID,
		"head", head,
		"fetched_to_block", state.FetchedToBlock,
		"lag_blocks", lag,
		"blocks_per_second", blocksPerSecond,
	}
	if blocksPerSecond > 0 && lag > 0 {
		fields = append(fields, "eta_seconds", float64(lag)/blocksPerSecond)
	}
	m.log.Event("progress_reported").Infow("indexing progress", fields...)
}
