package decoder_test

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/drips-network/dripfeed-sub001/internal/decoder"
	"github.com/stretchr/testify/require"
)

const givenEventABI = `[{
	"anonymous": false,
	"inputs": [
		{"indexed": true, "name": "accountId", "type": "uint256"},
		{"indexed": false, "name": "amount", "type": "uint128"}
	],
	"name": "Given",
	"type": "event"
}]`

func mustABI(t *testing.T, raw string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(raw))
	require.NoError(t, err)
	return parsed
}

func TestDecoder_DecodesKnownEvent(t *testing.T) {
	contractABI := mustABI(t, givenEventABI)
	address := common.HexToAddress("0x1111111111111111111111111111111111111111")

	d, err := decoder.New([]decoder.ContractBinding{
		{Address: address, ABI: contractABI, EventNames: []string{"Given"}},
	}, nil)
	require.NoError(t, err)

	event := contractABI.Events["Given"]
	accountIDTopic := common.BigToHash(common.Big1)

	nonIndexed, err := event.Inputs.NonIndexed().Pack(big.NewInt(500))
	require.NoError(t, err)

	log := types.Log{
		Address: address,
		Topics:  []common.Hash{event.ID, accountIDTopic},
		Data:    nonIndexed,
	}

	outcome := d.Decode(log)
	require.NotNil(t, outcome.Decoded)
	require.Equal(t, "Given", outcome.Decoded.EventName)
	require.Equal(t, event.ID, outcome.Decoded.EventSig)
	require.Equal(t, big.NewInt(500), outcome.Decoded.Args["amount"])
}

func TestDecoder_UnknownEventSkipped(t *testing.T) {
	contractABI := mustABI(t, givenEventABI)
	address := common.HexToAddress("0x2222222222222222222222222222222222222222")

	d, err := decoder.New([]decoder.ContractBinding{
		{Address: address, ABI: contractABI, EventNames: []string{"Given"}},
	}, nil)
	require.NoError(t, err)

	log := types.Log{
		Address: address,
		Topics:  []common.Hash{common.HexToHash("0xdeadbeef")},
	}

	outcome := d.Decode(log)
	require.Empty(t, outcome.MissingHandler)
	require.Nil(t, outcome.Decoded)
	require.Equal(t, decoder.SkipUnknownEvent, outcome.Skip)
}

func TestDecoder_MissingLogFields(t *testing.T) {
	d, err := decoder.New(nil, nil)
	require.NoError(t, err)

	outcome := d.Decode(types.Log{})
	require.Equal(t, decoder.SkipMissingLogFields, outcome.Skip)
}

func TestDecoder_MissingHandler(t *testing.T) {
	contractABI := mustABI(t, givenEventABI)
	address := common.HexToAddress("0x3333333333333333333333333333333333333333")
	addrKey := strings.ToLower(address.Hex())

	d, err := decoder.New([]decoder.ContractBinding{
		{Address: address, ABI: contractABI, EventNames: []string{"Given"}},
	}, map[string]map[string]bool{addrKey: {}})
	require.NoError(t, err)

	event := contractABI.Events["Given"]
	nonIndexed, err := event.Inputs.NonIndexed().Pack(big.NewInt(1))
	require.NoError(t, err)

	log := types.Log{
		Address: address,
		Topics:  []common.Hash{event.ID, common.BigToHash(common.Big1)},
		Data:    nonIndexed,
	}

	outcome := d.Decode(log)
	require.Equal(t, "Given", outcome.MissingHandler)
	require.Nil(t, outcome.Decoded)
}

func TestDecoder_SchemaChainBinding(t *testing.T) {
	d, err := decoder.New(nil, nil)
	require.NoError(t, err)

	require.NoError(t, d.BindSchemaChain("dripfeed_1", 1))
	require.NoError(t, d.BindSchemaChain("dripfeed_1", 1))
	require.Error(t, d.BindSchemaChain("dripfeed_1", 2))
}
