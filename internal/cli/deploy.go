package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/epord/Plasma-Cash-RootChain/internal/artifact"
	"github.com/epord/Plasma-Cash-RootChain/internal/audit"
	"github.com/epord/Plasma-Cash-RootChain/internal/chain"
	"github.com/epord/Plasma-Cash-RootChain/internal/lock"
	"github.com/epord/Plasma-Cash-RootChain/internal/metrics"
	"github.com/epord/Plasma-Cash-RootChain/internal/plan"
	"github.com/epord/Plasma-Cash-RootChain/internal/repository"
	"github.com/epord/Plasma-Cash-RootChain/internal/sequencer"
)

func newDeployCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a plan of contracts and libraries",
		Long: `Deploy every step of a plan in order. Constructor arguments written as
references (@Name) receive the address of the earlier step, and libraries are
linked into the bytecode of the steps that use them.

The first failure stops the session. Contracts already deployed stay on chain
and are printed together with the failed step.

Exit status is 0 on success, 1 when a deployment fails, and 2 for configuration
or plan errors.

Examples:
  # Built-in Plasma Cash plan against a local Ganache
  deployctl deploy --rpc http://127.0.0.1:8545

  # Custom plan, address book written to addresses.json
  deployctl deploy --plan deploy.yaml --out addresses.json

  # Resolve and encode everything without sending transactions
  deployctl deploy --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, a)
		},
	}

	f := cmd.Flags()
	f.String("plan", "", "plan file (default: built-in Plasma Cash plan)")
	f.String("artifacts", "build/contracts", "artifact directory")
	f.String("rpc", "http://127.0.0.1:8545", "JSON-RPC endpoint")
	f.String("network", "development", "network name used in history and metrics")
	f.Int64("chain-id", 0, "chain ID (read from the node when zero)")
	f.String("out", "", "write the name to address mapping as JSON to this file")
	f.Bool("dry-run", false, "simulate deployments without sending transactions")
	return cmd
}

// deployment bundles what one deploy session needs.
type deployment struct {
	backend  sequencer.Backend
	chainID  int64
	deployer common.Address
	close    func()
}

func runDeploy(cmd *cobra.Command, a *app) error {
	err := a.setup(cmd, map[string]string{
		"plan.file":        "plan",
		"artifacts.dir":    "artifacts",
		"network.rpc_url":  "rpc",
		"network.name":     "network",
		"network.chain_id": "chain-id",
	})
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out, _ := cmd.Flags().GetString("out")

	p, err := loadPlan(a.cfg.Plan.File)
	if err != nil {
		return fail(ExitUsage, err)
	}
	steps := p.Sequence()

	store := artifact.NewStore(a.cfg.Artifacts.Dir)
	var d *deployment
	if dryRun {
		d, err = a.simulatedDeployment(store)
	} else {
		d, err = a.chainDeployment(ctx, store)
	}
	if err != nil {
		return fail(ExitUsage, err)
	}
	defer d.close()

	locker, closeLocker, err := a.locker(ctx, dryRun)
	if err != nil {
		return fail(ExitUsage, err)
	}
	defer closeLocker()
	release, err := locker.Acquire(ctx, d.chainID, d.deployer.Hex())
	if err != nil {
		return fail(ExitFailure, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("failed to release deployment lock", slog.String("error", err.Error()))
		}
	}()

	opts := []sequencer.Option{sequencer.WithLogger(a.logger)}
	if repo := a.openHistory(ctx); repo != nil {
		defer repo.Close()
		rec := repository.NewRecorder(repo, &repository.Session{
			Plan:     p.Name,
			Network:  a.cfg.Network.Name,
			ChainID:  d.chainID,
			Deployer: d.deployer.Hex(),
			DryRun:   dryRun,
		}, a.logger)
		a.logger.Info("recording session", slog.String("session_id", rec.SessionID()))
		opts = append(opts, sequencer.WithObserver(rec))
	}
	m := metrics.NewDeployments(a.cfg.Network.Name)
	opts = append(opts, sequencer.WithObserver(m))

	results, runErr := sequencer.New(d.backend, opts...).Run(ctx, steps)

	printResults(a, steps, results)
	if out != "" {
		if err := writeAddressBook(out, results); err != nil {
			a.logger.Error("failed to write address book", slog.String("path", out), slog.String("error", err.Error()))
		}
	}
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		if err := m.Push(context.WithoutCancel(ctx), url, a.cfg.Metrics.Job); err != nil {
			a.logger.Warn("failed to push metrics", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		var stepErr *sequencer.StepError
		if errors.As(runErr, &stepErr) {
			return fail(ExitUsage, runErr)
		}
		return fail(ExitFailure, runErr)
	}
	return nil
}

func loadPlan(file string) (*plan.Plan, error) {
	if file == "" {
		return plan.Default(), nil
	}
	return plan.Load(file)
}

func (a *app) simulatedDeployment(store *artifact.Store) (*deployment, error) {
	var deployer common.Address
	if key := a.cfg.Deployer.PrivateKey; key != "" {
		signer, err := chain.NewLocalSigner(key, a.cfg.Network.ChainID)
		if err != nil {
			return nil, err
		}
		deployer = signer.Address()
	}
	a.logger.Info("dry run: no transactions will be sent", slog.String("deployer", deployer.Hex()))
	return &deployment{
		backend:  chain.NewSimulatedBackend(deployer, store, a.logger),
		chainID:  a.cfg.Network.ChainID,
		deployer: deployer,
		close:    func() {},
	}, nil
}

func (a *app) chainDeployment(ctx context.Context, store *artifact.Store) (*deployment, error) {
	if a.cfg.Deployer.PrivateKey == "" {
		return nil, errors.New("deployer.private_key is required (set DEPLOYCTL_DEPLOYER_PRIVATE_KEY)")
	}

	client, err := chain.Dial(ctx, a.cfg.Network.RPCURL)
	if err != nil {
		return nil, err
	}
	chainID := a.cfg.Network.ChainID
	if chainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("get chain ID: %w", err)
		}
		chainID = id.Int64()
	}

	signer, err := chain.NewLocalSigner(a.cfg.Deployer.PrivateKey, chainID)
	if err != nil {
		client.Close()
		return nil, err
	}

	gas := a.cfg.Gas
	backend := chain.NewBackend(client, signer, store,
		chain.WithLogger(a.logger),
		chain.WithGasConfig(chain.GasConfig{
			PriceBoostPercent:  gas.PriceBoostPercent,
			MinPrice:           new(big.Int).SetUint64(gas.MinPriceWei),
			LimitBufferPercent: gas.LimitBufferPercent,
			FallbackLimit:      gas.FallbackLimit,
			MaxLimit:           gas.MaxLimit,
		}),
	)
	if err := backend.Preflight(ctx); err != nil {
		client.Close()
		return nil, err
	}

	a.logger.Info("connected",
		slog.String("network", a.cfg.Network.Name),
		slog.Int64("chain_id", chainID),
		slog.String("deployer", signer.Address().Hex()),
	)
	return &deployment{
		backend:  backend,
		chainID:  chainID,
		deployer: signer.Address(),
		close:    client.Close,
	}, nil
}

// locker returns a Redis locker when Redis is configured and the session
// sends real transactions.
func (a *app) locker(ctx context.Context, dryRun bool) (lock.Locker, func(), error) {
	if dryRun || a.cfg.Redis.Addr == "" {
		return lock.NopLocker{}, func() {}, nil
	}
	client, err := lock.Dial(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(client, a.cfg.Redis.LockTTL), func() { _ = client.Close() }, nil
}

// openHistory returns nil when history is disabled or unavailable; a
// deployment never depends on its ledger.
func (a *app) openHistory(ctx context.Context) repository.Repository {
	repo, err := a.repository(ctx)
	if errors.Is(err, errHistoryDisabled) {
		return nil
	}
	if err != nil {
		a.logger.Warn("deployment history disabled", slog.String("error", err.Error()))
		return nil
	}
	return repo
}

var errHistoryDisabled = errors.New("history is disabled (database.driver is none)")

func (a *app) repository(ctx context.Context) (repository.Repository, error) {
	switch a.cfg.Database.Driver {
	case "postgres":
		return repository.OpenPostgres(ctx, a.cfg.Database.DSN)
	case "file":
		return repository.NewFileRepository(a.cfg.Database.Path)
	default:
		return nil, errHistoryDisabled
	}
}

func printResults(a *app, steps []sequencer.Step, results sequencer.Results) {
	for _, res := range results.InOrder(steps) {
		switch res.Status {
		case sequencer.StatusDeployed:
			fmt.Fprintf(a.stdout, "%s%s\n", audit.Pad(res.Name, 25, ' '), res.Address.Hex())
		default:
			fmt.Fprintf(a.stdout, "%s%s\n", audit.Pad(res.Name, 25, ' '), res.Status)
		}
	}
}

// writeAddressBook writes the deployed addresses as a JSON object keyed by
// step name.
func writeAddressBook(path string, results sequencer.Results) error {
	book := make(map[string]string)
	for name, addr := range results.Addresses() {
		book[name] = addr.Hex()
	}
	data, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
