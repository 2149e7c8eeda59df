package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DeployFunc deploys one artifact with its libraries and constructor arguments
// already resolved to addresses. It may block until the deployment is mined.
type DeployFunc func(ctx context.Context, name string, libraries []LinkedLibrary, args []any) (Receipt, error)

// Observer is notified as a session progresses. Implementations must not
// block for long: the session waits on every callback.
type Observer interface {
	SessionStarted(ctx context.Context, steps []Step)
	StepStarted(ctx context.Context, step Step)
	StepFinished(ctx context.Context, result *Result)
	SessionFinished(ctx context.Context, results Results, err error)
}

// Run executes steps strictly in order, calling deploy once per step.
//
// On success it returns one Deployed result per step. The first failure aborts
// the session: the returned error is a *SessionError whose Results hold the
// earlier Deployed steps and the Failed step; later steps are never attempted.
// Nothing already deployed is rolled back. An empty list returns an empty
// mapping without calling deploy.
func Run(ctx context.Context, steps []Step, deploy DeployFunc) (Results, error) {
	return run(ctx, steps, deploy, nil)
}

func run(ctx context.Context, steps []Step, deploy DeployFunc, observers []Observer) (Results, error) {
	results := make(Results, len(steps))
	if err := Validate(steps); err != nil {
		return results, err
	}

	for _, o := range observers {
		o.SessionStarted(ctx, steps)
	}
	finish := func(err error) (Results, error) {
		for _, o := range observers {
			o.SessionFinished(ctx, results, err)
		}
		return results, err
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return finish(&SessionError{Step: step.Name, Err: err, Results: results})
		}

		res := &Result{
			Name:      step.Name,
			Kind:      step.kind(),
			Status:    StatusPending,
			StartedAt: time.Now(),
		}
		results[step.Name] = res
		for _, o := range observers {
			o.StepStarted(ctx, step)
		}

		receipt, err := execute(ctx, step, results, deploy)
		res.FinishedAt = time.Now()
		if err != nil {
			res.Status = StatusFailed
			res.Err = err
		} else {
			res.Status = StatusDeployed
			res.Address = receipt.Address
			res.TxHash = receipt.TxHash
		}
		for _, o := range observers {
			o.StepFinished(ctx, res)
		}
		if err != nil {
			return finish(&SessionError{Step: step.Name, Err: err, Results: results})
		}
	}

	return finish(nil)
}

// execute resolves a step's references against earlier results and deploys it.
func execute(ctx context.Context, step Step, results Results, deploy DeployFunc) (Receipt, error) {
	args := make([]any, len(step.Args))
	for i, a := range step.Args {
		if !a.IsRef() {
			args[i] = a.Value
			continue
		}
		addr, err := resolve(results, a.Ref)
		if err != nil {
			return Receipt{}, fmt.Errorf("constructor argument %d: %w", i, err)
		}
		args[i] = addr
	}

	libs := make([]LinkedLibrary, 0, len(step.Libraries))
	for _, name := range step.Libraries {
		addr, err := resolve(results, name)
		if err != nil {
			return Receipt{}, fmt.Errorf("library link: %w", err)
		}
		libs = append(libs, LinkedLibrary{Name: name, Address: addr})
	}

	receipt, err := deploy(ctx, step.Name, libs, args)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrDeploymentFailed, err)
	}
	if receipt.Address == (common.Address{}) {
		return Receipt{}, fmt.Errorf("%w: backend returned no address", ErrDeploymentFailed)
	}
	return receipt, nil
}

func resolve(results Results, name string) (common.Address, error) {
	res, ok := results[name]
	if !ok || res.Status != StatusDeployed {
		return common.Address{}, fmt.Errorf("%w: %s has not been deployed", ErrUnresolvedDependency, name)
	}
	return res.Address, nil
}
