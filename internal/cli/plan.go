package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPlanCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect deployment plans",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a plan and print its steps in deployment order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd, map[string]string{"plan.file": "plan"}); err != nil {
				return err
			}
			p, err := loadPlan(a.cfg.Plan.File)
			if err != nil {
				return fail(ExitUsage, err)
			}

			fmt.Fprintf(a.stdout, "plan %s: %d steps\n", p.Name, len(p.Steps))
			for i, s := range p.Sequence() {
				line := fmt.Sprintf("%2d. %s (%s)", i+1, s.Name, kindOf(s.Kind.String()))
				if len(s.Args) > 0 {
					args := make([]string, len(s.Args))
					for j, arg := range s.Args {
						args[j] = arg.String()
					}
					line += " args: " + strings.Join(args, ", ")
				}
				if len(s.Libraries) > 0 {
					line += " links: " + strings.Join(s.Libraries, ", ")
				}
				fmt.Fprintln(a.stdout, line)
			}
			return nil
		},
	}
	validateCmd.Flags().String("plan", "", "plan file (default: built-in Plasma Cash plan)")

	cmd.AddCommand(validateCmd)
	return cmd
}

func kindOf(k string) string {
	if k == "" {
		return "contract"
	}
	return k
}
