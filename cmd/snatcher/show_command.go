package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"snatcher/internal/api"
	"snatcher/internal/ipc"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var showDraft bool

	cmd := &cobra.Command{
		Use:   "show <record-id|posting-url>",
		Short: "Show full detail for one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(callCtx context.Context, client *ipc.Client) error {
				view, err := client.Describe(callCtx, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.RecordResponse{Record: view})
				}
				printRecordDetail(cmd, view, showDraft)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	cmd.Flags().BoolVar(&showDraft, "draft", false, "Include the drafted letter text")
	return cmd
}

func printRecordDetail(cmd *cobra.Command, view api.RecordView, showDraft bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Record:    %s\n", view.ID)
	fmt.Fprintf(out, "Key:       %s\n", view.ExternalKey)
	fmt.Fprintf(out, "Status:    %s\n", formatStatusLabel(view.Status))
	if view.Title != "" {
		fmt.Fprintf(out, "Title:     %s\n", view.Title)
	}
	if view.Company != "" {
		fmt.Fprintf(out, "Company:   %s\n", view.Company)
	}
	if view.Location != "" {
		fmt.Fprintf(out, "Location:  %s\n", view.Location)
	}
	fmt.Fprintf(out, "Scores:    cosine %s / reasoning %s / combined %s\n",
		formatScore(view.CosineScore), formatScore(view.ReasoningScore), formatScore(view.CombinedScore))
	if view.ReasoningExplanation != "" {
		fmt.Fprintf(out, "Reasoning: %s\n", view.ReasoningExplanation)
	}
	if view.DecisionDeadline != "" {
		fmt.Fprintf(out, "Deadline:  %s\n", view.DecisionDeadline)
	}
	fmt.Fprintf(out, "Review:    %s", yesNo(view.NeedsReview))
	if view.ReviewReason != "" {
		fmt.Fprintf(out, " (%s)", view.ReviewReason)
	}
	fmt.Fprintln(out)

	if len(view.StageTimestamps) > 0 {
		stages := make([]string, 0, len(view.StageTimestamps))
		for stage := range view.StageTimestamps {
			stages = append(stages, stage)
		}
		sort.Slice(stages, func(i, j int) bool {
			return view.StageTimestamps[stages[i]] < view.StageTimestamps[stages[j]]
		})
		fmt.Fprintln(out, "History:")
		for _, stage := range stages {
			fmt.Fprintf(out, "  %-20s %s\n", formatStatusLabel(stage), view.StageTimestamps[stage])
		}
	}

	if showDraft {
		text := view.FinalText
		label := "Final letter"
		if text == "" {
			text = view.DraftText
			label = "Draft letter"
		}
		if text != "" {
			fmt.Fprintf(out, "\n%s:\n%s\n", label, text)
		}
	}
}
