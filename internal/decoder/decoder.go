// Package decoder implements the Event Decoder (spec §4.5): it matches raw
// logs against (address, topic0) to an ABI event and handler, generalizing
// the teacher's per-address/per-topic indexer routing map from "route to an
// indexer" into "decode to a typed event".
package decoder

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SkipReason enumerates why a log was not decoded (spec §4.5).
type SkipReason string

const (
	SkipMissingLogFields SkipReason = "missing_log_fields"
	SkipUnknownEvent     SkipReason = "unknown_event"
	SkipDecodeError      SkipReason = "decode_error"
	SkipMissingEventName SkipReason = "missing_event_name"
)

// Decoded is a successfully decoded event.
type Decoded struct {
	EventName string
	EventSig  common.Hash
	Args      map[string]interface{}
}

// Outcome is the result of decoding one log: exactly one of Decoded,
// Skip, or MissingHandler is set.
type Outcome struct {
	Decoded        *Decoded
	Skip           SkipReason
	MissingHandler string // event name, when a handler was not registered
}

// ContractBinding is one monitored contract: its address, ABI, and the
// subset of event names to watch.
type ContractBinding struct {
	Address    common.Address
	ABI        abi.ABI
	EventNames []string
}

type indexEntry struct {
	event      abi.Event
	hasHandler bool
}

// Decoder holds the precomputed (address, topic0) -> event index built at
// startup, plus the process-lifetime schema/chain binding guard.
type Decoder struct {
	// byAddressTopic maps lowercased address hex -> topic0 -> indexEntry.
	byAddressTopic map[string]map[common.Hash]indexEntry
	// byAddressEventName maps lowercased address hex -> event name -> indexEntry,
	// used by the dispatcher to resolve handlers by (contractAddress, eventName).
	byAddressEventName map[string]map[string]indexEntry

	bindingMu  sync.Mutex
	boundChain uint64
	chainBound bool
	schemaName string
}

// handlerNames, if non-nil, marks which (lowercased address, event name)
// pairs have a registered handler; logs of other watched events are still
// unpacked, but Decode reports them as MissingHandler instead of Decoded.
func New(bindings []ContractBinding, handlerNames map[string]map[string]bool) (*Decoder, error) {
	d := &Decoder{
		byAddressTopic:     make(map[string]map[common.Hash]indexEntry),
		byAddressEventName: make(map[string]map[string]indexEntry),
	}

	for _, b := range bindings {
		addrKey := strings.ToLower(b.Address.Hex())
		if _, ok := d.byAddressTopic[addrKey]; !ok {
			d.byAddressTopic[addrKey] = make(map[common.Hash]indexEntry)
		}
		if _, ok := d.byAddressEventName[addrKey]; !ok {
			d.byAddressEventName[addrKey] = make(map[string]indexEntry)
		}

		for _, name := range b.EventNames {
			event, ok := b.ABI.Events[name]
			if !ok {
				return nil, fmt.Errorf("event %q not found in ABI for contract %s", name, b.Address.Hex())
			}

			hasHandler := true
			if handlerNames != nil {
				byName, addrRegistered := handlerNames[addrKey]
				hasHandler = addrRegistered && byName[name]
			}

			entry := indexEntry{event: event, hasHandler: hasHandler}
			d.byAddressTopic[addrKey][event.ID] = entry
			d.byAddressEventName[addrKey][name] = entry
		}
	}

	return d, nil
}

// BindSchemaChain asserts the process-lifetime schema/chain binding (spec
// §4.5, §9): a schema may be associated with at most one chain id. A
// conflicting re-bind is a fatal configuration error.
func (d *Decoder) BindSchemaChain(schema string, chainID uint64) error {
	d.bindingMu.Lock()
	defer d.bindingMu.Unlock()

	if d.chainBound {
		if d.schemaName != schema || d.boundChain != chainID {
			return fmt.Errorf("schema/chain binding conflict: schema %q already bound to chain %d, cannot rebind to (%q, %d)",
				d.schemaName, d.boundChain, schema, chainID)
		}
		return nil
	}

	d.schemaName = schema
	d.boundChain = chainID
	d.chainBound = true
	return nil
}

// Decode matches log against the index and returns its outcome.
func (d *Decoder) Decode(log types.Log) Outcome {
	if len(log.Topics) == 0 {
		return Outcome{Skip: SkipMissingLogFields}
	}

	addrKey := strings.ToLower(log.Address.Hex())
	topics, ok := d.byAddressTopic[addrKey]
	if !ok {
		return Outcome{Skip: SkipUnknownEvent}
	}

	entry, ok := topics[log.Topics[0]]
	if !ok {
		return Outcome{Skip: SkipUnknownEvent}
	}

	if entry.event.Name == "" {
		return Outcome{Skip: SkipMissingEventName}
	}

	args := make(map[string]interface{})
	if err := unpackLogArgs(entry.event, log, args); err != nil {
		return Outcome{Skip: SkipDecodeError}
	}

	if !entry.hasHandler {
		return Outcome{MissingHandler: entry.event.Name}
	}

	return Outcome{Decoded: &Decoded{
		EventName: entry.event.Name,
		EventSig:  entry.event.ID,
		Args:      args,
	}}
}

// HandlerFor resolves whether (contractAddress, eventName) has a registered
// handler, as recorded when the decoder was built. The dispatcher does not
// call it; it resolves handlers through its own Registry.
func (d *Decoder) HandlerFor(contractAddress, eventName string) bool {
	byName, ok := d.byAddressEventName[strings.ToLower(contractAddress)]
	if !ok {
		return false
	}
	entry, ok := byName[eventName]
	return ok && entry.hasHandler
}

func unpackLogArgs(event abi.Event, log types.Log, out map[string]interface{}) error {
	indexed := make(abi.Arguments, 0)
	nonIndexed := make(abi.Arguments, 0)
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		} else {
			nonIndexed = append(nonIndexed, arg)
		}
	}

	if len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(out, log.Data); err != nil {
			return fmt.Errorf("unpacking non-indexed args: %w", err)
		}
	}

	if len(indexed) > 0 {
		if len(log.Topics) < len(indexed)+1 {
			return fmt.Errorf("log has %d topics, need %d for indexed args", len(log.Topics), len(indexed)+1)
		}
		if err := abi.ParseTopicsIntoMap(out, indexed, log.Topics[1:]); err != nil {
			return fmt.Errorf("unpacking indexed args: %w", err)
		}
	}

	return nil
}
