// Package rpc wraps an Ethereum JSON-RPC endpoint with retrying, metered
// convenience methods for the Fetcher (spec §4.6): head number, windowed
// log queries, and batched block header lookups used for reorg checks.
package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps an Ethereum RPC endpoint with retry and metrics.
type Client struct {
	eth         *ethclient.Client
	rpc         *rpc.Client
	retryConfig *RetryConfig
}

// NewClient dials endpoint and returns a Client using retryConfig for
// transient-error retries. A nil retryConfig disables retries.
func NewClient(ctx context.Context, endpoint string, retryConfig *RetryConfig) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	return &Client{
		eth:         ethclient.NewClient(rpcClient),
		rpc:         rpcClient,
		retryConfig: retryConfig,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// GetBlockNumber returns the current chain head number, used by the
// Fetcher to derive the confirmations-based safe head (spec §4.6).
func (c *Client) GetBlockNumber(ctx context.Context) (uint64, error) {
	start := time.Now()
	RPCMethodInc("eth_blockNumber")
	defer func() { RPCMethodDuration("eth_blockNumber", time.Since(start)) }()

	var head uint64
	err := retryWithBackoff(ctx, c.retryConfig, "eth_blockNumber", func() error {
		var fetchErr error
		head, fetchErr = c.eth.BlockNumber(ctx)
		return fetchErr
	})
	if err != nil {
		RPCMethodError("eth_blockNumber", "error")
		return 0, err
	}
	return head, nil
}

// GetLogs retrieves logs matching query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	start := time.Now()
	RPCMethodInc("eth_getLogs")
	defer func() { RPCMethodDuration("eth_getLogs", time.Since(start)) }()

	var logs []types.Log
	err := retryWithBackoff(ctx, c.retryConfig, "eth_getLogs", func() error {
		var fetchErr error
		logs, fetchErr = c.eth.FilterLogs(ctx, query)
		return fetchErr
	})
	if err != nil {
		RPCMethodError("eth_getLogs", "error")
		return nil, err
	}
	return logs, nil
}

// GetBlockHeader retrieves the header for a specific block number. The
// Fetcher's reorg check fetches its headers through BatchGetBlockHeaders.
func (c *Client) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	start := time.Now()
	RPCMethodInc("eth_getBlockByNumber")
	defer func() { RPCMethodDuration("eth_getBlockByNumber", time.Since(start)) }()

	var header *types.Header
	err := retryWithBackoff(ctx, c.retryConfig, "eth_getBlockByNumber", func() error {
		var fetchErr error
		header, fetchErr = c.eth.HeaderByNumber(ctx, big.NewInt(int64(blockNum)))
		return fetchErr
	})
	if err != nil {
		RPCMethodError("eth_getBlockByNumber", "error")
		return nil, err
	}
	return header, nil
}

// BatchGetBlockHeaders retrieves headers for multiple block numbers in
// batched RPC calls of at most maxBatch each.
func (c *Client) BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	const maxBatch = 100
	var allResults []*types.Header

	start := time.Now()
	RPCMethodInc("eth_getBlockByNumber_batch")
	defer func() { RPCMethodDuration("eth_getBlockByNumber_batch", time.Since(start)) }()

	for i := 0; i < len(blockNums); i += maxBatch {
		end := min(i+maxBatch, len(blockNums))
		chunk := blockNums[i:end]

		var chunkResults []*types.Header
		err := retryWithBackoff(ctx, c.retryConfig, "eth_getBlockByNumber_batch", func() error {
			batch := make([]rpc.BatchElem, len(chunk))
			chunkResults = make([]*types.Header, len(chunk))

			for j, blockNum := range chunk {
				batch[j] = rpc.BatchElem{
					Method: "eth_getBlockByNumber",
					Args:   []any{toBlockNumArg(blockNum), false},
					Result: &chunkResults[j],
				}
			}

			if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
				return err
			}
			for _, elem := range batch {
				if elem.Error != nil {
					return elem.Error
				}
			}
			return nil
		})
		if err != nil {
			RPCMethodError("eth_getBlockByNumber_batch", "error")
			return nil, err
		}

		allResults = append(allResults, chunkResults...)
	}

	return allResults, nil
}

// BatchGetLogs retrieves logs for multiple filter queries in one batch RPC
// call. The Fetcher does not use it; it issues one GetLogs per window.
func (c *Client) BatchGetLogs(ctx context.Context, queries []ethereum.FilterQuery) ([][]types.Log, error) {
	start := time.Now()
	RPCMethodInc("eth_getLogs_batch")
	defer func() { RPCMethodDuration("eth_getLogs_batch", time.Since(start)) }()

	var results [][]types.Log
	err := retryWithBackoff(ctx, c.retryConfig, "eth_getLogs_batch", func() error {
		batch := make([]rpc.BatchElem, len(queries))
		results = make([][]types.Log, len(queries))

		for i, query := range queries {
			batch[i] = rpc.BatchElem{
				Method: "eth_getLogs",
				Args:   []any{toFilterArg(query)},
				Result: &results[i],
			}
		}

		if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
			return err
		}
		for _, elem := range batch {
			if elem.Error != nil {
				return elem.Error
			}
		}
		return nil
	})
	if err != nil {
		RPCMethodError("eth_getLogs_batch", "error")
		return nil, err
	}
	return results, nil
}

func toFilterArg(q ethereum.FilterQuery) any {
	arg := map[string]any{
		"topics": q.Topics,
	}

	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
	} else {
		if q.FromBlock != nil {
			arg["fromBlock"] = toBlockNumArg(q.FromBlock.Uint64())
		}
		if q.ToBlock != nil {
			arg["toBlock"] = toBlockNumArg(q.ToBlock.Uint64())
		}
	}

	if len(q.Addresses) > 0 {
		if len(q.Addresses) == 1 {
			arg["address"] = q.Addresses[0]
		} else {
			arg["address"] = q.Addresses
		}
	}

	return arg
}

func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}
