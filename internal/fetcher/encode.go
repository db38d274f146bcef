package fetcher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/drips-network/dripfeed-sub001/internal/decoder"
	"github.com/drips-network/dripfeed-sub001/internal/eventlog"
)

// toEvent maps a decoded log into the durable queue row. blockTimestamp
// comes from the header fetched alongside this window (spec §4.6 step 3:
// "request block hashes and timestamps for the same range"). Arg values
// that are big.Int/bytes/arrays marshal through encoding/json's default
// handling, matching how the domain repositories decode args back out.
func toEvent(chainID uint64, l types.Log, blockTimestamp time.Time, decoded *decoder.Decoded) (eventlog.Event, error) {
	args, err := json.Marshal(decoded.Args)
	if err != nil {
		return eventlog.Event{}, fmt.Errorf("marshaling event args: %w", err)
	}

	return eventlog.Event{
		ChainID:         chainID,
		BlockNumber:     l.BlockNumber,
		TxIndex:         l.TxIndex,
		LogIndex:        l.Index,
		BlockHash:       l.BlockHash.Hex(),
		BlockTimestamp:  blockTimestamp,
		TransactionHash: l.TxHash.Hex(),
		ContractAddress: l.Address.Hex(),
		EventName:       decoded.EventName,
		EventSig:        decoded.EventSig.Hex(),
		Args:            json.RawMessage(args),
		Status:          eventlog.StatusPending,
	}, nil
}
