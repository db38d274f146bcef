// Package fetcher implements the Fetcher (spec §4.6): the long-lived loop
// that determines the safe head, checks for reorgs, fetches and decodes a
// window of logs, and persists events, hashes, and the cursor atomically.
// It generalizes the teacher's internal/downloader/log_fetcher.go fetch
// loop and pkg/reorg/detector.go's verify-then-record ordering into a
// single confirmations-based (not finality-tag-based) cycle.
package fetcher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/drips-network/dripfeed-sub001/internal/blockhash"
	"github.com/drips-network/dripfeed-sub001/internal/cursor"
	"github.com/drips-network/dripfeed-sub001/internal/dbretry"
	"github.com/drips-network/dripfeed-sub001/internal/decoder"
	"github.com/drips-network/dripfeed-sub001/internal/eventlog"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/internal/metrics"
	"github.com/drips-network/dripfeed-sub001/internal/rpc"
)

const minFetchWindow = 100

// Config parameterizes one chain's fetch loop.
type Config struct {
	ChainID       uint64
	StartBlock    uint64
	Confirmations uint64
	FetchWindow   uint64
	ReorgWindow   uint64
	PollInterval  time.Duration
}

// Fetcher runs the fetch-decode-persist-prune cycle for one chain.
type Fetcher struct {
	cfg       Config
	rpc       *rpc.Client
	db        *sql.DB
	cursors   *cursor.Store
	hashes    *blockhash.Store
	events    *eventlog.Store
	decoder   *decoder.Decoder
	addresses []common.Address
	log       *logger.Logger

	currentWindow  uint64
	iterationCount uint64
}

// New constructs a Fetcher. addresses restricts eth_getLogs to the
// decoder's known contracts.
func New(
	cfg Config,
	rpcClient *rpc.Client,
	database *sql.DB,
	cursors *cursor.Store,
	hashes *blockhash.Store,
	events *eventlog.Store,
	dec *decoder.Decoder,
	addresses []common.Address,
	log *logger.Logger,
) *Fetcher {
	return &Fetcher{
		cfg:           cfg,
		rpc:           rpcClient,
		db:            database,
		cursors:       cursors,
		hashes:        hashes,
		events:        events,
		decoder:       dec,
		addresses:     addresses,
		log:           log.WithComponent("fetcher"),
		currentWindow: cfg.FetchWindow,
	}
}

// Run drives the loop until ctx is cancelled or a permanent error occurs.
// A returned error is fatal and should bring down the process.
func (f *Fetcher) Run(ctx context.Context) error {
	if err := f.cursors.InitializeIfAbsent(ctx, f.cfg.ChainID, f.cfg.StartBlock); err != nil {
		return fmt.Errorf("initializing cursor: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		idle, err := f.iterate(ctx)
		if err != nil {
			return fmt.Errorf("fetcher iteration failed: %w", err)
		}

		if idle {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(f.cfg.PollInterval):
			}
		}
	}
}

// iterate runs one loop cycle and reports whether it was idle (no new
// safe-head progress, so the caller should sleep).
func (f *Fetcher) iterate(ctx context.Context) (idle bool, err error) {
	start := time.Now()

	head, err := f.rpc.GetBlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("getting block number: %w", err)
	}

	safe := safeHead(head, f.cfg.Confirmations)
	metrics.SafeHeadBlock.Set(float64(safe))

	cur, err := f.cursors.Get(f.cfg.ChainID)
	if err != nil {
		return false, fmt.Errorf("getting cursor: %w", err)
	}

	if safe <= cur.FetchedToBlock {
		return true, nil
	}

	reorgPoint, err := f.checkReorg(ctx, cur.FetchedToBlock)
	if err != nil {
		return false, fmt.Errorf("checking reorg: %w", err)
	}
	if reorgPoint != nil {
		if err := f.rewind(ctx, cur.FetchedToBlock, *reorgPoint); err != nil {
			return false, fmt.Errorf("rewinding from reorg: %w", err)
		}
		return false, nil
	}

	from := cur.FetchedToBlock + 1
	to := min(safe, cur.FetchedToBlock+f.currentWindow)

	logs, headers, fetchErr := f.fetchWindow(ctx, from, to)
	if fetchErr != nil {
		if shrunk := f.shrinkWindowOn(fetchErr); shrunk {
			f.log.Event("fetch_window_shrunk").Warnw("shrinking fetch window after provider error",
				"from_block", from, "to_block", to, "new_window", f.currentWindow, "error", fetchErr)
			return false, nil
		}
		return false, fmt.Errorf("fetching window [%d, %d]: %w", from, to, fetchErr)
	}

	records, events, err := f.decodeWindow(logs, headers)
	if err != nil {
		return false, fmt.Errorf("decoding window [%d, %d]: %w", from, to, err)
	}

	if err := f.persist(ctx, to, records, events); err != nil {
		return false, fmt.Errorf("persisting window [%d, %d]: %w", from, to, err)
	}

	f.iterationCount++
	if f.iterationCount%10 == 0 {
		pruneBefore := pruneFloor(to, f.cfg.ReorgWindow)
		if pruned, err := f.hashes.DeleteBefore(ctx, f.cfg.ChainID, pruneBefore); err != nil {
			f.log.Warnw("pruning block hashes failed", "error", err)
		} else {
			metrics.RetentionHashesPruned.Add(float64(pruned))
		}
	}

	metrics.LastIndexedBlock.Set(float64(to))
	metrics.BlocksProcessed.Add(float64(to - from + 1))
	metrics.LogsIndexed.Add(float64(len(events)))
	metrics.FetchWindowDuration.Observe(time.Since(start).Seconds())

	f.log.Event("fetch_window_completed").Infow("fetch window completed",
		"from_block", from, "to_block", to, "logs", len(logs), "events", len(events))

	// A full window landed meant we likely have more to fetch; an undersized
	// one (capped by safe) means we caught up to the head for now.
	return to >= safe, nil
}

// checkReorg compares stored hashes in [fetchedTo-R, fetchedTo] against the
// chain's current hashes, returning the first mismatching block number.
func (f *Fetcher) checkReorg(ctx context.Context, fetchedTo uint64) (*uint64, error) {
	if fetchedTo == 0 {
		return nil, nil
	}

	lowest := pruneFloor(fetchedTo, f.cfg.ReorgWindow)
	blockNums := make([]uint64, 0, fetchedTo-lowest+1)
	for n := lowest; n <= fetchedTo; n++ {
		blockNums = append(blockNums, n)
	}
	if len(blockNums) == 0 {
		return nil, nil
	}

	headers, err := f.rpc.BatchGetBlockHeaders(ctx, blockNums)
	if err != nil {
		return nil, fmt.Errorf("fetching headers for reorg check: %w", err)
	}

	tx, err := f.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("beginning reorg check tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, header := range headers {
		blockNum := header.Number.Uint64()
		stored, err := f.hashes.Get(tx, f.cfg.ChainID, blockNum)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading stored hash for block %d: %w", blockNum, err)
		}

		if stored != header.Hash() {
			point := blockNum
			return &point, nil
		}
	}

	return nil, nil
}

// rewind deletes hashes/events at and after the reorg point and resets the
// cursor to just before it, all within one transaction (spec §4.6 step 2).
func (f *Fetcher) rewind(ctx context.Context, fetchedTo, reorgPoint uint64) error {
	return dbretry.Do(ctx, dbretry.DefaultConfig(), "reorg_rewind", func() error {
		tx, err := f.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning rewind tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := f.cursors.GetForUpdate(tx, f.cfg.ChainID); err != nil {
			return fmt.Errorf("locking cursor for rewind: %w", err)
		}
		if err := f.hashes.DeleteFromBlock(ctx, tx, f.cfg.ChainID, reorgPoint); err != nil {
			return err
		}
		if err := f.events.DeleteFromBlock(ctx, tx, f.cfg.ChainID, reorgPoint); err != nil {
			return err
		}

		rewindTo := uint64(0)
		if reorgPoint > 0 {
			rewindTo = reorgPoint - 1
		}
		if err := f.cursors.Reset(ctx, tx, f.cfg.ChainID, rewindTo); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing rewind: %w", err)
		}

		depth := fetchedTo - reorgPoint + 1
		metrics.ReorgDetectedLog(depth, reorgPoint)
		f.log.Event("reorg_detected").Warnw("reorg detected, rewound cursor",
			"reorg_point", reorgPoint, "rewound_to", rewindTo, "depth", depth)
		return nil
	})
}

func (f *Fetcher) fetchWindow(ctx context.Context, from, to uint64) ([]types.Log, []*types.Header, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(int64(from)),
		ToBlock:   big.NewInt(int64(to)),
		Addresses: f.addresses,
	}

	logs, err := f.rpc.GetLogs(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	blockNums := make([]uint64, 0, to-from+1)
	for n := from; n <= to; n++ {
		blockNums = append(blockNums, n)
	}
	headers, err := f.rpc.BatchGetBlockHeaders(ctx, blockNums)
	if err != nil {
		return nil, nil, err
	}

	return logs, headers, nil
}

// shrinkWindowOn halves the fetch window when the provider rejects a
// request as too large, per spec §4.6's "reduced window on the next
// attempt" partial-failure policy. Returns false for errors it doesn't
// recognize as window-size related, signalling the caller to treat the
// error as fatal instead.
func (f *Fetcher) shrinkWindowOn(err error) bool {
	if ok, _ := rpc.IsTooManyResultsError(err); !ok {
		return false
	}

	newWindow := f.currentWindow / 2
	if newWindow < minFetchWindow {
		newWindow = minFetchWindow
	}
	f.currentWindow = newWindow
	return true
}

func (f *Fetcher) decodeWindow(logs []types.Log, headers []*types.Header) ([]blockhash.Record, []eventlog.Event, error) {
	records := make([]blockhash.Record, 0, len(headers))
	timestamps := make(map[uint64]time.Time, len(headers))
	for _, header := range headers {
		blockNum := header.Number.Uint64()
		records = append(records, blockhash.Record{
			ChainID:     f.cfg.ChainID,
			BlockNumber: blockNum,
			BlockHash:   header.Hash(),
		})
		timestamps[blockNum] = time.Unix(int64(header.Time), 0).UTC()
	}

	events := make([]eventlog.Event, 0, len(logs))
	for _, l := range logs {
		outcome := f.decoder.Decode(l)

		switch {
		case outcome.Decoded != nil:
			event, err := toEvent(f.cfg.ChainID, l, timestamps[l.BlockNumber], outcome.Decoded)
			if err != nil {
				return nil, nil, fmt.Errorf("encoding decoded args for tx %s log %d: %w", l.TxHash.Hex(), l.Index, err)
			}
			events = append(events, event)
		case outcome.MissingHandler != "":
			f.log.Event("decode_error").Warnw("log decoded but no handler registered, discarding",
				"contract", l.Address.Hex(), "event", outcome.MissingHandler,
				"tx", l.TxHash.Hex(), "log_index", l.Index)
		default:
			f.log.Event("decode_error").Debugw("log skipped",
				"contract", l.Address.Hex(), "reason", outcome.Skip,
				"tx", l.TxHash.Hex(), "log_index", l.Index)
		}
	}

	return records, events, nil
}

func (f *Fetcher) persist(ctx context.Context, to uint64, records []blockhash.Record, events []eventlog.Event) error {
	return dbretry.Do(ctx, dbretry.DefaultConfig(), "fetch_window_persist", func() error {
		tx, err := f.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning persist tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := f.hashes.InsertBatch(ctx, tx, records); err != nil {
			return err
		}
		if err := f.events.InsertBatch(ctx, tx, events); err != nil {
			return err
		}
		if err := f.cursors.Advance(ctx, tx, f.cfg.ChainID, to); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing persist: %w", err)
		}
		return nil
	})
}

func safeHead(head, confirmations uint64) uint64 {
	if head < confirmations {
		return 0
	}
	return head - confirmations
}

func pruneFloor(fetchedTo, reorgWindow uint64) uint64 {
	if fetchedTo < reorgWindow {
		return 0
	}
	return fetchedTo - reorgWindow
}
