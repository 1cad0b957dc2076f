package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"snatcher/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, record, and compute-host status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(callCtx context.Context, client *ipc.Client) error {
				status, err := client.Status(callCtx)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				runKind := statusWarn
				runLabel := "Stopped"
				if status.Running {
					runKind = statusOK
					runLabel = fmt.Sprintf("Running (pid %d)", status.PID)
				}
				fmt.Fprintln(out, renderStatusLine("State", runKind, runLabel, colorize))
				fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DBPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Lock", statusInfo, status.LockFilePath, colorize))

				for _, line := range renderSectionHeader("Compute Host", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Lease", leaseStateKind(string(status.Lease.State)),
					formatStatusLabel(string(status.Lease.State)), colorize))
				if status.Lease.Holder != "" {
					fmt.Fprintln(out, renderStatusLine("Holder", statusInfo, status.Lease.Holder, colorize))
				}
				fmt.Fprintln(out, renderStatusLine("Waiting", statusInfo, fmt.Sprintf("%d", status.Lease.Waiting), colorize))

				for _, line := range renderSectionHeader("Records", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Total", statusInfo, fmt.Sprintf("%d", status.Stats.Total), colorize))
				statuses := make([]string, 0, len(status.Stats.ByStatus))
				for name := range status.Stats.ByStatus {
					statuses = append(statuses, name)
				}
				sort.Strings(statuses)
				for _, name := range statuses {
					fmt.Fprintln(out, renderStatusLine(formatStatusLabel(name), recordStatusKind(name),
						fmt.Sprintf("%d", status.Stats.ByStatus[name]), colorize))
				}
				reviewKind := statusOK
				if status.Stats.Review > 0 {
					reviewKind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Needs Review", reviewKind,
					fmt.Sprintf("%d", status.Stats.Review), colorize))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
