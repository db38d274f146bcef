package helpers

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/require"
)

const anvilFirstAccountKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func getFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to get free port")

	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	return port
}

// AnvilChain manages a local Anvil node used to exercise the Fetcher and
// reorg-detection path against a real EVM JSON-RPC server.
type AnvilChain struct {
	cmd        *exec.Cmd
	URL        string
	Client     *ethclient.Client
	PrivateKey *ecdsa.PrivateKey
	Signer     *bind.TransactOpts
	ChainID    *big.Int
}

// StartAnvil launches Anvil on a free port with auto-mining disabled so
// tests control block production explicitly.
func StartAnvil(t *testing.T) *AnvilChain {
	t.Helper()

	port := getFreePort(t)
	url := fmt.Sprintf("http://127.0.0.1:%d", port)

	cmd := exec.Command("anvil", "--port", fmt.Sprintf("%d", port), "--no-mining")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	require.NoError(t, cmd.Start(), "failed to start anvil")

	time.Sleep(2 * time.Second)

	client, err := ethclient.Dial(url)
	require.NoError(t, err, "failed to connect to anvil")

	ctx := t.Context()
	chainID, err := client.ChainID(ctx)
	require.NoError(t, err, "failed to get chain id")

	privateKey, err := crypto.HexToECDSA(anvilFirstAccountKey)
	require.NoError(t, err, "failed to parse private key")

	signer, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	require.NoError(t, err, "failed to create signer")

	chain := &AnvilChain{
		cmd:        cmd,
		URL:        url,
		Client:     client,
		PrivateKey: privateKey,
		Signer:     signer,
		ChainID:    chainID,
	}

	t.Cleanup(chain.Stop)

	return chain
}

// Stop terminates the Anvil process and closes the RPC client.
func (a *AnvilChain) Stop() {
	if a.Client != nil {
		a.Client.Close()
	}
	if a.cmd != nil && a.cmd.Process != nil {
		_ = a.cmd.Process.Kill()
		_ = a.cmd.Wait()
	}
}

// Snapshot captures the current chain state, for simulating a reorg later
// via RevertToSnapshot.
func (a *AnvilChain) Snapshot(t *testing.T) string {
	t.Helper()

	var id string
	require.NoError(t, a.Client.Client().Call(&id, "evm_snapshot"), "failed to snapshot")
	return id
}

// RevertToSnapshot rolls the chain back to a prior snapshot, simulating a
// reorg: subsequent mined blocks form a different canonical branch at the
// same heights.
func (a *AnvilChain) RevertToSnapshot(t *testing.T, snapshotID string) {
	t.Helper()

	var ok bool
	require.NoError(t, a.Client.Client().Call(&ok, "evm_revert", snapshotID), "failed to revert")
	require.True(t, ok, "snapshot revert returned false")
}

// Mine mines n empty blocks.
func (a *AnvilChain) Mine(t *testing.T, n int) {
	t.Helper()

	for range n {
		var hash string
		require.NoError(t, a.Client.Client().Call(&hash, "evm_mine"), "failed to mine block")
	}
}

// BlockNumber returns the current head block number.
func (a *AnvilChain) BlockNumber(t *testing.T) uint64 {
	t.Helper()

	ctx := t.Context()
	n, err := a.Client.BlockNumber(ctx)
	require.NoError(t, err, "failed to get block number")
	return n
}

// SafeBlockNumber returns BlockNumber() - confirmations (floored at 0),
// mirroring the Fetcher's safe-head computation (spec §4.6).
func (a *AnvilChain) SafeBlockNumber(t *testing.T, confirmations uint64) uint64 {
	t.Helper()

	head := a.BlockNumber(t)
	if confirmations >= head {
		return 0
	}
	return head - confirmations
}

// BlockHash returns the canonical hash of a mined block.
func (a *AnvilChain) BlockHash(t *testing.T, blockNumber uint64) common.Hash {
	t.Helper()

	ctx := t.Context()
	block, err := a.Client.BlockByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	require.NoError(t, err, "failed to get block")
	return block.Hash()
}

// SkipIfAnvilNotAvailable skips the test when the anvil binary is not on PATH.
func SkipIfAnvilNotAvailable(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("anvil"); err != nil {
		t.Skip("anvil not found in PATH, skipping integration test")
	}
}
