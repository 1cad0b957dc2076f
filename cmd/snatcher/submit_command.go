package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"snatcher/internal/api"
	"snatcher/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req api.SubmitRequest
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "submit <posting-url>",
		Short: "Register a job posting for evaluation",
		Long: "Register a job posting for evaluation. The URL is the deduplication key;\n" +
			"when no posting fields are supplied the daemon fetches them from the URL.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ExternalKey = strings.TrimSpace(args[0])
			return ctx.withClient(func(callCtx context.Context, client *ipc.Client) error {
				resp, err := client.Submit(callCtx, req)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Created {
					fmt.Fprintf(out, "Submitted %s as record %s\n", req.ExternalKey, resp.Record.ID)
				} else {
					fmt.Fprintf(out, "Already tracked as record %s (status %s)\n",
						resp.Record.ID, formatStatusLabel(resp.Record.Status))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "Posting title (skips ingestion when set with --description)")
	cmd.Flags().StringVar(&req.Company, "company", "", "Company name")
	cmd.Flags().StringVar(&req.Description, "description", "", "Posting description text")
	cmd.Flags().StringVar(&req.Location, "location", "", "Posting location")
	cmd.Flags().StringVar(&req.Source, "source", "", "Posting source label")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
