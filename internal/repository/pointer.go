// Package repository implements the Entity Repositories (spec §4.8): narrow,
// replayable upsert/update/ensure-exists/find operations over the domain
// tables, each guarded by event-pointer monotonicity, plus the splits rule
// matrix validator (spec §6). Grounded on the teacher's
// internal/downloader/sync_manager.go meddler.Update upsert pattern and
// examples/indexers/erc20/erc20_token_indexer.go's per-row transactional
// writes, generalized from one concrete entity into a shared table helper.
package repository

import "fmt"

// EventPointer identifies the last event that mutated an entity, used to
// enforce write monotonicity in lexicographic (block, tx, log) order
// (spec §3, §4.8).
type EventPointer struct {
	Block    uint64
	TxIndex  uint32
	LogIndex uint32
}

// Less reports whether p sorts strictly before o.
func (p EventPointer) Less(o EventPointer) bool {
	if p.Block != o.Block {
		return p.Block < o.Block
	}
	if p.TxIndex != o.TxIndex {
		return p.TxIndex < o.TxIndex
	}
	return p.LogIndex < o.LogIndex
}

// GTE reports whether p sorts at or after o.
func (p EventPointer) GTE(o EventPointer) bool {
	return !p.Less(o)
}

func (p EventPointer) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.Block, p.TxIndex, p.LogIndex)
}
