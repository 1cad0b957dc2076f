package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"snatcher/internal/api"
)

// writeJSON serves every command's --json flag: indented output on stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var statusTitleCaser = cases.Title(language.English)

// formatStatusLabel renders a lifecycle status for humans:
// "reasoning_scored" becomes "Reasoning Scored".
func formatStatusLabel(status string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(status), "_", " ")
	if cleaned == "" {
		return "Unknown"
	}
	return statusTitleCaser.String(cleaned)
}

// formatScore renders an optional score with three decimals.
func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *score)
}

func truncate(value string, max int) string {
	value = strings.TrimSpace(value)
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func recordRows(views []api.RecordView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, view := range views {
		review := ""
		if view.NeedsReview {
			review = "yes"
		}
		rows = append(rows, []string{
			view.ID,
			truncate(view.Title, 40),
			truncate(view.Company, 24),
			formatStatusLabel(view.Status),
			formatScore(view.CosineScore),
			formatScore(view.ReasoningScore),
			formatScore(view.CombinedScore),
			review,
		})
	}
	return rows
}

func renderRecordTable(views []api.RecordView) string {
	headers := []string{"ID", "Title", "Company", "Status", "Cosine", "Reasoning", "Combined", "Review"}
	return renderTable(headers, recordRows(views))
}
