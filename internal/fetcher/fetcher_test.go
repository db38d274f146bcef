package fetcher

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/drips-network/dripfeed-sub001/internal/decoder"
	"github.com/stretchr/testify/require"
)

func TestSafeHead(t *testing.T) {
	require.EqualValues(t, 88, safeHead(100, 12))
	require.EqualValues(t, 0, safeHead(5, 12))
	require.EqualValues(t, 0, safeHead(12, 12))
}

func TestPruneFloor(t *testing.T) {
	require.EqualValues(t, 36, pruneFloor(100, 64))
	require.EqualValues(t, 0, pruneFloor(50, 64))
}

func TestShrinkWindowOn(t *testing.T) {
	f := &Fetcher{currentWindow: 2000}
	require.False(t, f.shrinkWindowOn(errors.New("connection refused")))
	require.Equal(t, uint64(2000), f.currentWindow)
}

func TestToEvent(t *testing.T) {
	l := types.Log{
		Address:     common.HexToAddress("0xabc"),
		BlockNumber: 100,
		TxIndex:     1,
		Index:       2,
		BlockHash:   common.HexToHash("0xblock"),
		TxHash:      common.HexToHash("0xtx"),
	}
	decoded := &decoder.Decoded{
		EventName: "Given",
		EventSig:  common.HexToHash("0xsig"),
		Args:      map[string]interface{}{"amount": uint64(500)},
	}

	ts := time.Unix(1700000000, 0).UTC()
	event, err := toEvent(1, l, ts, decoded)
	require.NoError(t, err)
	require.Equal(t, "Given", event.EventName)
	require.Equal(t, ts, event.BlockTimestamp)
	require.JSONEq(t, `{"amount":500}`, string(event.Args))
}
