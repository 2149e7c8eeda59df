package cli

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/epord/Plasma-Cash-RootChain/internal/repository"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List recorded deployment sessions, or the steps of one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd, nil); err != nil {
				return err
			}
			repo, err := a.repository(cmd.Context())
			if err != nil {
				return fail(ExitUsage, err)
			}
			defer repo.Close()

			if len(args) == 1 {
				return showSession(cmd, a, repo, args[0])
			}
			limit, _ := cmd.Flags().GetInt("limit")
			return listSessions(cmd, a, repo, limit)
		},
	}
	cmd.Flags().Int("limit", 10, "maximum number of sessions to list (0 for all)")
	return cmd
}

func listSessions(cmd *cobra.Command, a *app, repo repository.Repository, limit int) error {
	sessions, err := repo.ListSessions(cmd.Context(), limit)
	if err != nil {
		return fail(ExitFailure, err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(a.stdout, "No deployment sessions recorded.")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(a.stdout)
	tw.AppendHeader(table.Row{"Session", "Plan", "Network", "Chain", "Status", "Started"})
	for _, s := range sessions {
		tw.AppendRow(table.Row{s.ID, s.Plan, s.Network, s.ChainID, s.Status, s.StartedAt.Local().Format("2006-01-02 15:04:05")})
	}
	tw.Render()
	return nil
}

func showSession(cmd *cobra.Command, a *app, repo repository.Repository, id string) error {
	s, err := repo.GetSession(cmd.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(ExitFailure, fmt.Errorf("session %s not found", id))
	}
	if err != nil {
		return fail(ExitFailure, err)
	}
	steps, err := repo.ListDeployments(cmd.Context(), id)
	if err != nil {
		return fail(ExitFailure, err)
	}

	fmt.Fprintf(a.stdout, "Session %s (%s on %s): %s\n", s.ID, s.Plan, s.Network, s.Status)
	if s.ErrorMessage != nil {
		fmt.Fprintf(a.stdout, "Error: %s\n", *s.ErrorMessage)
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(a.stdout)
	tw.AppendHeader(table.Row{"#", "Step", "Kind", "Status", "Address", "Tx"})
	for _, d := range steps {
		tw.AppendRow(table.Row{d.Position + 1, d.Name, d.Kind, d.Status, deref(d.Address), deref(d.TxHash)})
	}
	tw.Render()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
