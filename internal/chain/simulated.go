package chain

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/epord/Plasma-Cash-RootChain/internal/artifact"
	"github.com/epord/Plasma-Cash-RootChain/internal/sequencer"
)

// SimulatedBackend performs dry runs. It derives each contract address from
// the deployer and a local nonce the way CREATE does, so every call yields a
// fresh address. When a Store is given, artifacts are loaded, linked and their
// constructor arguments encoded exactly as a real deployment would.
type SimulatedBackend struct {
	deployer common.Address
	linker   *linker

	mu    sync.Mutex
	nonce uint64
}

// NewSimulatedBackend creates a dry-run backend. store may be nil to skip
// artifact checks entirely.
func NewSimulatedBackend(deployer common.Address, store *artifact.Store, logger *slog.Logger) *SimulatedBackend {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SimulatedBackend{deployer: deployer}
	if store != nil {
		s.linker = newLinker(store, logger)
	}
	return s
}

// Link records lib for the artifact named into.
func (s *SimulatedBackend) Link(_ context.Context, lib sequencer.LinkedLibrary, into string) error {
	if s.linker == nil {
		return nil
	}
	return s.linker.link(lib, into)
}

// Deploy returns the address the next contract creation would receive.
func (s *SimulatedBackend) Deploy(ctx context.Context, name string, args []any) (sequencer.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return sequencer.Receipt{}, err
	}
	var data []byte
	if s.linker != nil {
		var err error
		if data, err = s.linker.creationCode(name, args); err != nil {
			return sequencer.Receipt{}, err
		}
	}

	s.mu.Lock()
	nonce := s.nonce
	s.nonce++
	s.mu.Unlock()

	addr := crypto.CreateAddress(s.deployer, nonce)
	return sequencer.Receipt{
		Address: addr,
		TxHash:  crypto.Keccak256Hash(addr.Bytes(), data),
	}, nil
}

var _ sequencer.Backend = (*SimulatedBackend)(nil)
