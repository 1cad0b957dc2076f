package api

import (
	"snatcher/internal/records"
)

// FromRecord converts a store record into its transport representation.
func FromRecord(rec *records.Record) RecordView {
	if rec == nil {
		return RecordView{}
	}
	view := RecordView{
		ID:                   rec.ID,
		ExternalKey:          rec.ExternalKey,
		Status:               string(rec.Status),
		Title:                rec.Title,
		Company:              rec.Company,
		Location:             rec.Location,
		Source:               rec.Source,
		CosineScore:          rec.CosineScore,
		ReasoningScore:       rec.ReasoningScore,
		CombinedScore:        rec.CombinedScore,
		ReasoningExplanation: rec.ReasoningExplanation,
		DraftText:            rec.DraftText,
		FinalText:            rec.FinalText,
		NeedsReview:          rec.NeedsReview,
		ReviewReason:         rec.ReviewReason,
	}
	if rec.DecisionDeadline != nil {
		view.DecisionDeadline = rec.DecisionDeadline.Format(dateTimeFormat)
	}
	if len(rec.StageTimestamps) > 0 {
		stamps := make(map[string]string, len(rec.StageTimestamps))
		for stage, at := range rec.StageTimestamps {
			stamps[stage] = at.Format(dateTimeFormat)
		}
		view.StageTimestamps = stamps
	}
	if !rec.CreatedAt.IsZero() {
		view.CreatedAt = rec.CreatedAt.Format(dateTimeFormat)
	}
	if !rec.UpdatedAt.IsZero() {
		view.UpdatedAt = rec.UpdatedAt.Format(dateTimeFormat)
	}
	return view
}

// FromRecords converts a record slice, preserving order.
func FromRecords(recs []*records.Record) []RecordView {
	if len(recs) == 0 {
		return nil
	}
	views := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, FromRecord(rec))
	}
	return views
}

// FromStats converts a stats summary into the transport payload.
func FromStats(summary records.StatsSummary) StatsResponse {
	byStatus := make(map[string]int, len(summary.ByStatus))
	for status, count := range summary.ByStatus {
		byStatus[string(status)] = count
	}
	return StatsResponse{
		Total:    summary.Total,
		ByStatus: byStatus,
		Review:   summary.Review,
	}
}
