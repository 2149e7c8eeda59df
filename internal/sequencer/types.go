// Package sequencer deploys an ordered list of interdependent contracts and
// libraries, resolving every reference to the address of an earlier step.
package sequencer

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind distinguishes contracts from libraries. Libraries are linked into the
// bytecode of later steps instead of being passed as constructor arguments.
type Kind string

const (
	// KindContract is a regular contract deployment.
	KindContract Kind = "contract"
	// KindLibrary is a library that dependents link against.
	KindLibrary Kind = "library"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Status is the lifecycle state of one step within a session.
type Status string

const (
	// StatusPending indicates the step has started but not finished.
	StatusPending Status = "pending"
	// StatusDeployed indicates the step's deployment was confirmed.
	StatusDeployed Status = "deployed"
	// StatusFailed indicates the step failed and the session was aborted.
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Arg is a constructor argument: either a literal value or a reference to the
// address of an earlier step.
type Arg struct {
	Ref   string
	Value any
}

// Literal returns an argument holding v.
func Literal(v any) Arg {
	return Arg{Value: v}
}

// Ref returns an argument resolved to the deployed address of step name.
func Ref(name string) Arg {
	return Arg{Ref: name}
}

// IsRef reports whether the argument references another step.
func (a Arg) IsRef() bool {
	return a.Ref != ""
}

// String renders the argument for logs and plan listings.
func (a Arg) String() string {
	if a.IsRef() {
		return "@" + a.Ref
	}
	return fmt.Sprint(a.Value)
}

// Step is one deployment within a session.
type Step struct {
	Name      string
	Kind      Kind
	Args      []Arg
	Libraries []string
}

// kind defaults an unset Kind to KindContract.
func (s Step) kind() Kind {
	if s.Kind == "" {
		return KindContract
	}
	return s.Kind
}

// DependsOn returns every step name this step references, in declaration order.
func (s Step) DependsOn() []string {
	var deps []string
	for _, a := range s.Args {
		if a.IsRef() {
			deps = append(deps, a.Ref)
		}
	}
	return append(deps, s.Libraries...)
}

// LinkedLibrary is a deployed library bound into a dependent's bytecode.
type LinkedLibrary struct {
	Name    string
	Address common.Address
}

// Receipt is what a backend reports for a confirmed deployment.
type Receipt struct {
	Address common.Address
	TxHash  common.Hash
}

// Result records the outcome of one attempted step.
type Result struct {
	Name       string
	Kind       Kind
	Status     Status
	Address    common.Address
	TxHash     common.Hash
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the step ran.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Results maps step names to their results. Steps never attempted are absent.
type Results map[string]*Result

// Addresses returns the addresses of all deployed steps.
func (r Results) Addresses() map[string]common.Address {
	out := make(map[string]common.Address, len(r))
	for name, res := range r {
		if res.Status == StatusDeployed {
			out[name] = res.Address
		}
	}
	return out
}

// Names returns the step names in sorted order.
func (r Results) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InOrder returns the results following the order of steps, skipping steps
// that were never attempted.
func (r Results) InOrder(steps []Step) []*Result {
	out := make([]*Result, 0, len(r))
	for _, s := range steps {
		if res, ok := r[s.Name]; ok {
			out = append(out, res)
		}
	}
	return out
}
