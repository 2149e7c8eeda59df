package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epord/Plasma-Cash-RootChain/internal/audit"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report deployed code sizes of compiled artifacts",
		Long: `Load every *.json artifact in a build directory, report its deployed code size
largest first, and flag artifacts above the threshold.

Exit status is 0 when every artifact is within the limit, 1 when at least one
exceeds it, and 2 when the directory or an artifact cannot be read.

Examples:
  deployctl audit --dir build/contracts --threshold 24000
  deployctl audit --threshold 12000 --format table --unit kb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd, a)
		},
	}

	f := cmd.Flags()
	f.String("dir", "build/contracts", "artifact directory")
	f.Int("threshold", 24000, "size limit in bytes")
	f.Int("concurrency", audit.DefaultConcurrency, "artifact files read in parallel")
	f.Bool("skip-malformed", false, "skip malformed artifacts with a warning instead of failing")
	f.String("format", "lines", "output format: lines, table or json")
	f.String("unit", "bytes", "size unit: bytes or kb")
	return cmd
}

func runAudit(cmd *cobra.Command, a *app) error {
	err := a.setup(cmd, map[string]string{
		"artifacts.dir":         "dir",
		"audit.threshold_bytes": "threshold",
		"audit.concurrency":     "concurrency",
	})
	if err != nil {
		return err
	}

	policy, err := audit.ParseMalformedPolicy(a.cfg.Audit.OnMalformed)
	if err != nil {
		return fail(ExitUsage, err)
	}
	if skip, _ := cmd.Flags().GetBool("skip-malformed"); skip {
		policy = audit.Skip
	}
	unitFlag, _ := cmd.Flags().GetString("unit")
	unit, err := audit.ParseUnit(unitFlag)
	if err != nil {
		return fail(ExitUsage, err)
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "lines" && format != "table" && format != "json" {
		return fail(ExitUsage, fmt.Errorf("unknown format %q", format))
	}

	report, err := audit.Audit(cmd.Context(), a.cfg.Artifacts.Dir, audit.Options{
		Threshold:   a.cfg.Audit.ThresholdBytes,
		OnMalformed: policy,
		Concurrency: a.cfg.Audit.Concurrency,
		Logger:      a.logger,
	})
	if err != nil {
		return fail(audit.ExitCodeFor(err), err)
	}

	switch format {
	case "table":
		audit.WriteTable(a.stdout, report, unit)
	case "json":
		err = audit.WriteJSON(a.stdout, report)
	default:
		err = audit.WriteLines(a.stdout, report, unit)
	}
	if err != nil {
		return fail(audit.ExitReadError, fmt.Errorf("write report: %w", err))
	}

	if code := report.ExitCode(); code != audit.ExitOK {
		return fail(code, fmt.Errorf("%d of %d artifacts exceed %d bytes",
			len(report.OverLimit()), len(report.Entries), report.Threshold))
	}
	return nil
}
