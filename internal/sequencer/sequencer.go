package sequencer

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend publishes artifacts on chain. It is supplied by the hosting
// deployment environment (an RPC-backed chain client, or a simulation).
type Backend interface {
	// Link binds a deployed library's address into the bytecode template of
	// the artifact named into, ahead of that artifact's deployment.
	Link(ctx context.Context, library LinkedLibrary, into string) error
	// Deploy publishes the named artifact and waits for confirmation.
	Deploy(ctx context.Context, name string, args []any) (Receipt, error)
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an observer for session progress.
func WithObserver(o Observer) Option {
	return func(s *Sequencer) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

// Sequencer runs deployment sessions against a Backend.
type Sequencer struct {
	backend   Backend
	logger    *slog.Logger
	observers []Observer
}

// New creates a Sequencer for backend.
func New(backend Backend, opts ...Option) *Sequencer {
	s := &Sequencer{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one deployment session. Each call deploys fresh contracts:
// running the same steps twice yields two independent sets of addresses.
func (s *Sequencer) Run(ctx context.Context, steps []Step) (Results, error) {
	s.logger.Info("starting deployment session", slog.Int("steps", len(steps)))

	results, err := run(ctx, steps, s.deploy, s.observers)
	if err != nil {
		s.logger.Error("deployment session aborted",
			slog.Int("deployed", len(results.Addresses())),
			slog.String("error", err.Error()),
		)
		return results, err
	}

	s.logger.Info("deployment session completed", slog.Int("deployed", len(results)))
	return results, nil
}

func (s *Sequencer) deploy(ctx context.Context, name string, libs []LinkedLibrary, args []any) (Receipt, error) {
	for _, lib := range libs {
		s.logger.Debug("linking library",
			slog.String("library", lib.Name),
			slog.String("address", lib.Address.Hex()),
			slog.String("into", name),
		)
		if err := s.backend.Link(ctx, lib, name); err != nil {
			return Receipt{}, fmt.Errorf("link %s: %w", lib.Name, err)
		}
	}

	s.logger.Info("deploying", slog.String("step", name), slog.Int("args", len(args)))
	receipt, err := s.backend.Deploy(ctx, name, args)
	if err != nil {
		return Receipt{}, err
	}

	s.logger.Info("deployed",
		slog.String("step", name),
		slog.String("address", receipt.Address.Hex()),
		slog.String("tx_hash", receipt.TxHash.Hex()),
	)
	return receipt, nil
}
