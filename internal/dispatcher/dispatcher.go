// Package dispatcher implements the Dispatcher (spec §4.7): the long-lived
// loop that drains the event queue in strict order, resolves a handler per
// (contractAddress, eventName), and invokes it within the same transaction
// as the event's status update. Grounded on the teacher's
// pkg/indexer/indexer_coordinator.go HandleLogs dispatch idea, reshaped
// from a fire-and-forget callback into a durable-queue drain loop.
package dispatcher

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/drips-network/dripfeed-sub001/internal/eventlog"
	"github.com/drips-network/dripfeed-sub001/internal/logger"
	"github.com/drips-network/dripfeed-sub001/internal/metrics"
)

// HandlerContext is the transactional context handed to a Handler. All
// repository writes made through Tx share atomicity with the event's
// status update (spec §4.7 step 4).
type HandlerContext struct {
	Ctx   context.Context
	Tx    *sql.Tx
	Event eventlog.Event
	Log   *logger.Logger
}

// Handler applies one decoded event's domain effects within hctx.Tx.
type Handler func(hctx *HandlerContext) error

// Registry resolves a Handler by lowercased contract address and event
// name, built once at startup by the coordinator.
type Registry map[string]map[string]Handler

// HandlerNames exposes the registered event names per address, letting the
// decoder's own hasHandler index agree with the dispatcher's registry.
func (r Registry) HandlerNames() map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(r))
	for addr, byName := range r {
		names := make(map[string]bool, len(byName))
		for name := range byName {
			names[name] = true
		}
		out[addr] = names
	}
	return out
}

func (r Registry) resolve(contractAddress, eventName string) (Handler, bool) {
	byName, ok := r[strings.ToLower(contractAddress)]
	if !ok {
		return nil, false
	}
	h, ok := byName[eventName]
	return h, ok
}

const (
	defaultBatchSize   = 1
	idlePollInterval   = 200 * time.Millisecond
	haltedPollInterval = 2 * time.Second
)

// Config parameterizes the dispatcher's drain loop.
type Config struct {
	ChainID   uint64
	BatchSize int
}

// Dispatcher drains eventlog.Store in strict order, invoking registered
// handlers.
type Dispatcher struct {
	cfg      Config
	db       *sql.DB
	events   *eventlog.Store
	registry Registry
	log      *logger.Logger
}

// New constructs a Dispatcher. A zero Config.BatchSize defaults to 1 for
// strict per-event ordering (spec §4.7).
func New(cfg Config, database *sql.DB, events *eventlog.Store, registry Registry, log *logger.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Dispatcher{
		cfg:      cfg,
		db:       database,
		events:   events,
		registry: registry,
		log:      log.WithComponent("dispatcher"),
	}
}

// Run drives the drain loop until ctx is cancelled. A returned error is
// fatal to the process (spec §4.9: coordinator terminates on task error).
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		halted, err := d.events.HasFailed(ctx, d.cfg.ChainID)
		if err != nil {
			return fmt.Errorf("checking halted state: %w", err)
		}
		if halted {
			if err := sleep(ctx, haltedPollInterval); err != nil {
				return nil
			}
			continue
		}

		processed, err := d.drainBatch(ctx)
		if err != nil {
			return fmt.Errorf("draining batch: %w", err)
		}

		if processed == 0 {
			if err := sleep(ctx, idlePollInterval); err != nil {
				return nil
			}
		}
	}
}

// drainBatch pops up to BatchSize pending events and dispatches them in
// order within one transaction, halting at the first failure.
func (d *Dispatcher) drainBatch(ctx context.Context) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning dispatch tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	batch, err := d.events.GetNextPendingBatch(tx, d.cfg.ChainID, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("getting next pending batch: %w", err)
	}
	if len(batch) == 0 {
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("committing empty batch: %w", err)
		}
		committed = true
		return 0, nil
	}

	processed := 0
	for _, event := range batch {
		ok, err := d.dispatchOne(ctx, tx, event)
		if err != nil {
			return 0, err
		}
		processed++
		if !ok {
			// Halt: a failure occurred. Commit what's already resolved
			// (prior successes in this batch plus this failure) and let
			// the caller's HasFailed check stop further draining.
			break
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing dispatch batch: %w", err)
	}
	committed = true
	return processed, nil
}

// dispatchOne resolves and invokes the handler for one event. It returns
// ok=false when the event was marked failed (no_handler or handler error),
// signalling the caller to halt the batch.
func (d *Dispatcher) dispatchOne(ctx context.Context, tx *sql.Tx, event eventlog.Event) (ok bool, err error) {
	handler, found := d.registry.resolve(event.ContractAddress, event.EventName)
	if !found {
		if err := d.events.MarkFailed(ctx, tx, event.ID, "no_handler"); err != nil {
			return false, fmt.Errorf("marking event %d failed (no_handler): %w", event.ID, err)
		}
		metrics.EventsDispatched.WithLabelValues("no_handler").Inc()
		d.log.Event("event_failed").Warnw("no handler registered",
			"event_id", event.ID, "contract", event.ContractAddress, "event_name", event.EventName)
		return false, nil
	}

	hctx := &HandlerContext{Ctx: ctx, Tx: tx, Event: event, Log: d.log}
	if handlerErr := handler(hctx); handlerErr != nil {
		if err := d.events.MarkFailed(ctx, tx, event.ID, handlerErr.Error()); err != nil {
			return false, fmt.Errorf("marking event %d failed: %w", event.ID, err)
		}
		metrics.EventsDispatched.WithLabelValues("failed").Inc()
		d.log.Event("event_failed").Errorw("handler failed",
			"event_id", event.ID, "contract", event.ContractAddress, "event_name", event.EventName, "error", handlerErr)
		return false, nil
	}

	if err := d.events.MarkProcessed(ctx, tx, event.ID); err != nil {
		return false, fmt.Errorf("marking event %d processed: %w", event.ID, err)
	}
	metrics.EventsDispatched.WithLabelValues("processed").Inc()
	d.log.Event("event_processed").Debugw("event processed",
		"event_id", event.ID, "contract", event.ContractAddress, "event_name", event.EventName)
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
