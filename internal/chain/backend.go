package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/epord/Plasma-Cash-RootChain/internal/artifact"
	"github.com/epord/Plasma-Cash-RootChain/internal/sequencer"
)

var (
	// ErrReverted is returned when a deployment transaction is mined but fails.
	ErrReverted = errors.New("transaction reverted")
	// ErrChainMismatch is returned when the RPC endpoint serves another chain.
	ErrChainMismatch = errors.New("chain ID mismatch")
	// ErrNoBalance is returned when the deployer cannot pay for gas.
	ErrNoBalance = errors.New("deployer address has no balance")
)

// GasConfig controls gas pricing and limits for deployment transactions.
type GasConfig struct {
	// PriceBoostPercent is added on top of the node's suggested gas price.
	PriceBoostPercent uint64
	// MinPrice is the floor applied after boosting.
	MinPrice *big.Int
	// LimitBufferPercent is added on top of the estimated gas.
	LimitBufferPercent uint64
	// FallbackLimit is used when estimation fails.
	FallbackLimit uint64
	// MaxLimit caps the gas limit. Zero means no cap.
	MaxLimit uint64
}

// DefaultGasConfig returns the default gas settings.
func DefaultGasConfig() GasConfig {
	return GasConfig{
		PriceBoostPercent:  50,
		MinPrice:           big.NewInt(2_000_000_000), // 2 gwei
		LimitBufferPercent: 20,
		FallbackLimit:      10_000_000,
		MaxLimit:           15_000_000,
	}
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithGasConfig overrides the default gas settings.
func WithGasConfig(cfg GasConfig) BackendOption {
	return func(b *Backend) {
		b.gas = cfg
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) BackendOption {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Backend deploys artifacts from a Store through an RPC client. It implements
// sequencer.Backend. Nonces are fetched once and then tracked locally, so a
// Backend must be the only sender for its signer while a session runs.
type Backend struct {
	client Client
	signer Signer
	gas    GasConfig
	logger *slog.Logger
	*linker

	nonceMu  sync.Mutex
	nonce    uint64
	hasNonce bool
}

// NewBackend creates a Backend.
func NewBackend(client Client, signer Signer, store *artifact.Store, opts ...BackendOption) *Backend {
	b := &Backend{
		client: client,
		signer: signer,
		gas:    DefaultGasConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.linker = newLinker(store, b.logger)
	return b
}

// Deployer returns the address that sends deployment transactions.
func (b *Backend) Deployer() string {
	return b.signer.Address().Hex()
}

// Preflight verifies the endpoint serves the signer's chain and that the
// deployer holds a non-zero balance.
func (b *Backend) Preflight(ctx context.Context) error {
	chainID, err := b.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain ID: %w", err)
	}
	if chainID.Cmp(b.signer.ChainID()) != 0 {
		return fmt.Errorf("%w: expected %s, got %s", ErrChainMismatch, b.signer.ChainID(), chainID)
	}

	balance, err := b.client.BalanceAt(ctx, b.signer.Address(), nil)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	b.logger.Info("deployer balance",
		slog.String("address", b.signer.Address().Hex()),
		slog.String("balance_wei", balance.String()),
	)
	if balance.Sign() == 0 {
		return ErrNoBalance
	}
	return nil
}

// Link binds a deployed library into the bytecode of the artifact named into.
func (b *Backend) Link(_ context.Context, lib sequencer.LinkedLibrary, into string) error {
	return b.link(lib, into)
}

// Deploy sends a contract creation transaction for the named artifact and
// waits until it is mined.
func (b *Backend) Deploy(ctx context.Context, name string, args []any) (sequencer.Receipt, error) {
	data, err := b.creationCode(name, args)
	if err != nil {
		return sequencer.Receipt{}, err
	}

	nonce, err := b.nextNonce(ctx)
	if err != nil {
		return sequencer.Receipt{}, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := b.gasPrice(ctx)
	if err != nil {
		return sequencer.Receipt{}, fmt.Errorf("get gas price: %w", err)
	}
	gasLimit := b.gasLimit(ctx, name, data, gasPrice)

	b.logger.Debug("sending contract creation",
		slog.String("contract", name),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
		slog.String("gas_price", gasPrice.String()),
	)

	tx := types.NewContractCreation(nonce, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := b.signer.SignTransaction(ctx, tx)
	if err != nil {
		b.resetNonce()
		return sequencer.Receipt{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signedTx); err != nil {
		b.resetNonce()
		return sequencer.Receipt{}, fmt.Errorf("send transaction: %w", err)
	}

	b.logger.Info("transaction submitted, waiting for confirmation",
		slog.String("contract", name),
		slog.String("tx_hash", signedTx.Hash().Hex()),
	)

	receipt, err := bind.WaitMined(ctx, b.client, signedTx)
	if err != nil {
		return sequencer.Receipt{}, fmt.Errorf("wait for receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return sequencer.Receipt{}, fmt.Errorf("%w: %s", ErrReverted, signedTx.Hash().Hex())
	}

	return sequencer.Receipt{
		Address: receipt.ContractAddress,
		TxHash:  signedTx.Hash(),
	}, nil
}

func (b *Backend) nextNonce(ctx context.Context) (uint64, error) {
	b.nonceMu.Lock()
	defer b.nonceMu.Unlock()

	if !b.hasNonce {
		n, err := b.client.PendingNonceAt(ctx, b.signer.Address())
		if err != nil {
			return 0, err
		}
		b.nonce = n
		b.hasNonce = true
	}
	n := b.nonce
	b.nonce++
	return n, nil
}

func (b *Backend) resetNonce() {
	b.nonceMu.Lock()
	b.hasNonce = false
	b.nonceMu.Unlock()
}

// gasPrice returns a boosted gas price for faster inclusion.
func (b *Backend) gasPrice(ctx context.Context) (*big.Int, error) {
	suggested, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	boosted := new(big.Int).Mul(suggested, new(big.Int).SetUint64(100+b.gas.PriceBoostPercent))
	boosted.Div(boosted, big.NewInt(100))

	if b.gas.MinPrice != nil && boosted.Cmp(b.gas.MinPrice) < 0 {
		boosted = new(big.Int).Set(b.gas.MinPrice)
	}
	return boosted, nil
}

func (b *Backend) gasLimit(ctx context.Context, name string, data []byte, gasPrice *big.Int) uint64 {
	limit, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     b.signer.Address(),
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     data,
	})
	if err != nil {
		limit = b.gas.FallbackLimit
		b.logger.Warn("gas estimation failed, using default",
			slog.String("contract", name),
			slog.Uint64("gas_limit", limit),
			slog.String("error", err.Error()),
		)
	}
	limit = limit * (100 + b.gas.LimitBufferPercent) / 100

	if b.gas.MaxLimit > 0 && limit > b.gas.MaxLimit {
		b.logger.Warn("gas limit capped to max",
			slog.Uint64("original", limit),
			slog.Uint64("capped", b.gas.MaxLimit),
		)
		limit = b.gas.MaxLimit
	}
	return limit
}

var _ sequencer.Backend = (*Backend)(nil)
