// Package cli implements the deployctl command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/epord/Plasma-Cash-RootChain/internal/config"
)

// Exit codes shared by all commands.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func fail(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// app is the state shared by every command of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer
}

// setup binds the invoking command's flags to config keys, then loads the
// configuration and the logger. Binding per command keeps flags of sibling
// commands that share a key from shadowing each other.
func (a *app) setup(cmd *cobra.Command, bindings map[string]string) error {
	all := map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
	}
	for key, flag := range bindings {
		all[key] = flag
	}
	for key, flag := range all {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q for %s", flag, key)
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return fail(ExitUsage, err)
	}
	a.cfg = cfg
	a.logger = newLogger(cfg.Log, a.stderr)
	return nil
}

// NewRootCmd builds the deployctl command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:   "deployctl",
		Short: "Deploy and audit Plasma Cash smart contracts",
		Long: `deployctl deploys an ordered plan of interdependent contracts and libraries,
threading each deployed address into the constructors and bytecode of later steps,
and audits compiled artifacts against a deployed code size limit.

Configuration is read from deployctl.yaml (in . or ./config), a .env file and
DEPLOYCTL_* environment variables; flags take precedence over all of them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default: deployctl.yaml in . or ./config)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")

	root.AddCommand(
		newAuditCmd(a),
		newDeployCmd(a),
		newPlanCmd(a),
		newHistoryCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintln(stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return ExitUsage
}

// changed reports whether the named flag was set on the command line.
func changed(flags *pflag.FlagSet, name string) bool {
	f := flags.Lookup(name)
	return f != nil && f.Changed
}
