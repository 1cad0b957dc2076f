package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"snatcher/internal/api"
	"snatcher/internal/ipc"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(callCtx context.Context, client *ipc.Client) error {
				views, err := client.List(callCtx, statuses)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.RecordListResponse{Records: views})
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No records found")
					return nil
				}
				fmt.Fprintln(out, renderRecordTable(views))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List records awaiting a reviewer decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(callCtx context.Context, client *ipc.Client) error {
				views, err := client.Pending(callCtx)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.RecordListResponse{Records: views})
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No records awaiting decision")
					return nil
				}
				headers := []string{"ID", "Title", "Company", "Combined", "Deadline"}
				rows := make([][]string, 0, len(views))
				for _, view := range views {
					rows = append(rows, []string{
						view.ID,
						truncate(view.Title, 40),
						truncate(view.Company, 24),
						formatScore(view.CombinedScore),
						view.DecisionDeadline,
					})
				}
				fmt.Fprintln(out, renderTable(headers, rows))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
