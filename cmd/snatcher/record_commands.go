package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"snatcher/internal/api"
	"snatcher/internal/ipc"
)

func newAdvanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <record-id>",
		Short: "Move a record through one pipeline stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(callCtx context.Context, client *ipc.Client) error {
				view, err := client.Advance(callCtx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record %s is now %s\n",
					view.ID, formatStatusLabel(view.Status))
				return nil
			})
		},
	}
}

func newPromoteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <record-id>",
		Short: "Force letter generation for a record parked below the notify threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(callCtx context.Context, client *ipc.Client) error {
				view, err := client.Promote(callCtx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record %s promoted; status %s\n",
					view.ID, formatStatusLabel(view.Status))
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <record-id>",
		Short: "Clear the review flag so the daemon resumes a stalled record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(callCtx context.Context, client *ipc.Client) error {
				view, err := client.Retry(callCtx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Record %s resumed at %s\n",
					view.ID, formatStatusLabel(view.Status))
				return nil
			})
		},
	}
}

func newApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <record-id>",
		Short: "Approve a drafted letter as-is",
		Args:  cobra.ExactArgs(1),
		RunE:  decideRunE(ctx, "approve", nil),
	}
}

func newRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <record-id>",
		Short: "Reject a drafted letter",
		Args:  cobra.ExactArgs(1),
		RunE:  decideRunE(ctx, "reject", nil),
	}
}

func newEditCommand(ctx *commandContext) *cobra.Command {
	var text string
	var file string

	cmd := &cobra.Command{
		Use:   "edit <record-id>",
		Short: "Approve a drafted letter with edited final text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			final := strings.TrimSpace(text)
			if final == "" && file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read final text file: %w", err)
				}
				final = strings.TrimSpace(string(raw))
			}
			if final == "" {
				return fmt.Errorf("edit requires --text or --file with the final letter")
			}
			return decideRunE(ctx, "edit", &final)(cmd, args)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Final letter text")
	cmd.Flags().StringVar(&file, "file", "", "File containing the final letter text")
	return cmd
}

func decideRunE(ctx *commandContext, decision string, finalText *string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(callCtx context.Context, client *ipc.Client) error {
			req := api.DecideRequest{Decision: decision}
			if finalText != nil {
				req.FinalText = *finalText
			}
			view, err := client.Decide(callCtx, args[0], req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Record %s is now %s\n",
				view.ID, formatStatusLabel(view.Status))
			return nil
		})
	}
}
