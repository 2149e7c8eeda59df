package chain

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epord/Plasma-Cash-RootChain/internal/artifact"
	"github.com/epord/Plasma-Cash-RootChain/internal/sequencer"
)

// Well-known development key (Anvil/Hardhat account #0).
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const addressCtorABI = `[{"type":"constructor","inputs":[{"name":"vmc","type":"address"}],"stateMutability":"nonpayable"}]`

var ecverifyPlaceholder = "__ECVerify" + strings.Repeat("_", 30)

// fakeClient mines every transaction instantly.
type fakeClient struct {
	mu          sync.Mutex
	chainID     *big.Int
	balance     *big.Int
	nonce       uint64
	nonceCalls  int
	gasPrice    *big.Int
	estimate    uint64
	estimateErr error
	sendErr     error
	status      uint64
	sent        []*types.Transaction
	receipts    map[common.Hash]*types.Receipt
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		chainID:  big.NewInt(1337),
		balance:  big.NewInt(1e18),
		gasPrice: big.NewInt(10_000_000_000),
		estimate: 100_000,
		status:   types.ReceiptStatusSuccessful,
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeClient) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	return f.nonce, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:          f.status,
		TxHash:          tx.Hash(),
		ContractAddress: crypto.CreateAddress(from, tx.Nonce()),
		BlockNumber:     big.NewInt(int64(len(f.sent))),
	}
	return nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeClient) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeClient) Close() {}

func writeArtifact(t *testing.T, dir, name, abiJSON, bytecode string) {
	t.Helper()
	doc := `{"contractName":"` + name + `","abi":` + abiJSON +
		`,"bytecode":"` + bytecode + `","deployedBytecode":"0x6080","sourcePath":"contracts/` + name + `.sol"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(doc), 0o644))
}

func testStore(t *testing.T) *artifact.Store {
	t.Helper()
	dir := t.TempDir()
	writeArtifact(t, dir, "ValidatorManagerContract", "[]", "0x6080604052")
	writeArtifact(t, dir, "RootChain", addressCtorABI, "0x6080604052")
	writeArtifact(t, dir, "ECVerify", "[]", "0x60806040")
	writeArtifact(t, dir, "CryptoMons", "[]", "0x6080"+ecverifyPlaceholder+"6040")
	return artifact.NewStore(dir)
}

func testBackend(t *testing.T, client *fakeClient) *Backend {
	t.Helper()
	signer, err := NewLocalSigner(testKey, 1337)
	require.NoError(t, err)
	return NewBackend(client, signer, testStore(t))
}

func TestNewLocalSigner(t *testing.T) {
	signer, err := NewLocalSigner("0x"+testKey, 1337)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), signer.Address())
	assert.Equal(t, int64(1337), signer.ChainID().Int64())

	_, err = NewLocalSigner("not-a-key", 1)
	assert.Error(t, err)
}

func TestBackend_Deploy(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.nonce = 7
	b := testBackend(t, client)

	vmc, err := b.Deploy(ctx, "ValidatorManagerContract", nil)
	require.NoError(t, err)
	root, err := b.Deploy(ctx, "RootChain", []any{vmc.Address})
	require.NoError(t, err)

	deployer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	assert.Equal(t, crypto.CreateAddress(deployer, 7), vmc.Address)
	assert.Equal(t, crypto.CreateAddress(deployer, 8), root.Address)
	assert.Equal(t, 1, client.nonceCalls, "nonce is tracked locally after the first query")

	require.Len(t, client.sent, 2)
	tx := client.sent[1]
	assert.Nil(t, tx.To())
	assert.Equal(t, root.TxHash, tx.Hash())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, big.NewInt(15_000_000_000), tx.GasPrice())

	want := append(common.FromHex("0x6080604052"), common.LeftPadBytes(vmc.Address.Bytes(), 32)...)
	assert.Equal(t, want, tx.Data())
}

func TestBackend_GasFallbackAndFloor(t *testing.T) {
	client := newFakeClient()
	client.estimateErr = errors.New("execution reverted")
	client.gasPrice = big.NewInt(1_000_000_000)
	b := testBackend(t, client)

	_, err := b.Deploy(context.Background(), "ValidatorManagerContract", nil)
	require.NoError(t, err)

	tx := client.sent[0]
	assert.Equal(t, uint64(12_000_000), tx.Gas())
	assert.Equal(t, big.NewInt(2_000_000_000), tx.GasPrice())
}

func TestBackend_GasCap(t *testing.T) {
	client := newFakeClient()
	client.estimate = 14_000_000
	b := testBackend(t, client)

	_, err := b.Deploy(context.Background(), "ValidatorManagerContract", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(15_000_000), client.sent[0].Gas())
}

func TestBackend_LinksLibraries(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	b := testBackend(t, client)

	lib, err := b.Deploy(ctx, "ECVerify", nil)
	require.NoError(t, err)

	_, err = b.Deploy(ctx, "CryptoMons", nil)
	require.ErrorIs(t, err, artifact.ErrUnlinkedLibrary)

	require.NoError(t, b.Link(ctx, sequencer.LinkedLibrary{Name: "ECVerify", Address: lib.Address}, "CryptoMons"))
	_, err = b.Deploy(ctx, "CryptoMons", nil)
	require.NoError(t, err)

	data := client.sent[len(client.sent)-1].Data()
	assert.Equal(t, common.FromHex("0x6080"+strings.TrimPrefix(strings.ToLower(lib.Address.Hex()), "0x")+"6040"), data)
}

func TestBackend_LinkUnknownArtifact(t *testing.T) {
	b := testBackend(t, newFakeClient())
	err := b.Link(context.Background(), sequencer.LinkedLibrary{Name: "ECVerify"}, "Ghost")
	assert.ErrorIs(t, err, artifact.ErrArtifactNotFound)
}

func TestBackend_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("reverted", func(t *testing.T) {
		client := newFakeClient()
		client.status = types.ReceiptStatusFailed
		_, err := testBackend(t, client).Deploy(ctx, "ValidatorManagerContract", nil)
		assert.ErrorIs(t, err, ErrReverted)
	})

	t.Run("send rejected resets nonce", func(t *testing.T) {
		client := newFakeClient()
		client.sendErr = errors.New("insufficient funds")
		b := testBackend(t, client)
		_, err := b.Deploy(ctx, "ValidatorManagerContract", nil)
		assert.ErrorContains(t, err, "insufficient funds")

		client.sendErr = nil
		_, err = b.Deploy(ctx, "ValidatorManagerContract", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, client.nonceCalls)
	})

	t.Run("missing artifact", func(t *testing.T) {
		_, err := testBackend(t, newFakeClient()).Deploy(ctx, "Ghost", nil)
		assert.ErrorIs(t, err, artifact.ErrArtifactNotFound)
	})

	t.Run("missing constructor argument", func(t *testing.T) {
		client := newFakeClient()
		_, err := testBackend(t, client).Deploy(ctx, "RootChain", nil)
		assert.ErrorContains(t, err, "takes 1 arguments, got 0")
		assert.Empty(t, client.sent)
	})

	t.Run("extra constructor argument", func(t *testing.T) {
		client := newFakeClient()
		_, err := testBackend(t, client).Deploy(ctx, "ValidatorManagerContract", []any{common.Address{1}})
		assert.Error(t, err)
		assert.Empty(t, client.sent)
	})
}

func TestBackend_Preflight(t *testing.T) {
	ctx := context.Background()

	client := newFakeClient()
	require.NoError(t, testBackend(t, client).Preflight(ctx))

	client = newFakeClient()
	client.chainID = big.NewInt(1)
	assert.ErrorIs(t, testBackend(t, client).Preflight(ctx), ErrChainMismatch)

	client = newFakeClient()
	client.balance = big.NewInt(0)
	assert.ErrorIs(t, testBackend(t, client).Preflight(ctx), ErrNoBalance)
}

func TestBackend_WithSequencer(t *testing.T) {
	client := newFakeClient()
	b := testBackend(t, client)

	steps := []sequencer.Step{
		{Name: "ValidatorManagerContract"},
		{Name: "RootChain", Args: []sequencer.Arg{sequencer.Ref("ValidatorManagerContract")}},
		{Name: "ECVerify", Kind: sequencer.KindLibrary},
		{Name: "CryptoMons", Libraries: []string{"ECVerify"}},
	}
	results, err := sequencer.New(b).Run(context.Background(), steps)
	require.NoError(t, err)
	assert.Len(t, results.Addresses(), 4)
	assert.Len(t, client.sent, 4)
}

func TestSimulatedBackend(t *testing.T) {
	ctx := context.Background()
	deployer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	t.Run("without artifacts", func(t *testing.T) {
		sim := NewSimulatedBackend(deployer, nil, nil)
		first, err := sim.Deploy(ctx, "Anything", nil)
		require.NoError(t, err)
		second, err := sim.Deploy(ctx, "Anything", nil)
		require.NoError(t, err)

		assert.Equal(t, crypto.CreateAddress(deployer, 0), first.Address)
		assert.Equal(t, crypto.CreateAddress(deployer, 1), second.Address)
	})

	t.Run("checks artifacts", func(t *testing.T) {
		sim := NewSimulatedBackend(deployer, testStore(t), nil)
		_, err := sim.Deploy(ctx, "CryptoMons", nil)
		assert.ErrorIs(t, err, artifact.ErrUnlinkedLibrary)

		_, err = sim.Deploy(ctx, "Ghost", nil)
		assert.ErrorIs(t, err, artifact.ErrArtifactNotFound)

		vmc, err := sim.Deploy(ctx, "ValidatorManagerContract", nil)
		require.NoError(t, err)
		_, err = sim.Deploy(ctx, "RootChain", []any{vmc.Address})
		assert.NoError(t, err)
	})
}
