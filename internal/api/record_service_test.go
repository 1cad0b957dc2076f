package api_test

import (
	"context"
	"testing"
	"time"

	"snatcher/internal/api"
	"snatcher/internal/records"
)

type fakePipeline struct {
	submitted map[string]*records.Record
	pending   []*records.Record
	decided   records.Decision
}

func (f *fakePipeline) Submit(_ context.Context, key string, posting records.Posting) (*records.Record, bool, error) {
	if rec, ok := f.submitted[key]; ok {
		return rec, false, nil
	}
	rec := &records.Record{ID: "rec-" + key, ExternalKey: key, Status: records.StatusDiscovered, Title: posting.Title}
	if f.submitted == nil {
		f.submitted = make(map[string]*records.Record)
	}
	f.submitted[key] = rec
	return rec, true, nil
}

func (f *fakePipeline) Advance(_ context.Context, id string) (*records.Record, error) {
	return &records.Record{ID: id, Status: records.StatusCosineScored}, nil
}

func (f *fakePipeline) Promote(_ context.Context, id string) (*records.Record, error) {
	return &records.Record{ID: id, Status: records.StatusDrafted}, nil
}

func (f *fakePipeline) Retry(_ context.Context, id string) (*records.Record, error) {
	return &records.Record{ID: id, Status: records.StatusCosineScored}, nil
}

func (f *fakePipeline) Decide(_ context.Context, id string, decision records.Decision, _ string) (*records.Record, error) {
	f.decided = decision
	return &records.Record{ID: id, Status: records.StatusApproved}, nil
}

func (f *fakePipeline) GetStatus(_ context.Context, id string) (*records.Record, error) {
	for _, rec := range f.submitted {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, records.ErrNotFound
}

func (f *fakePipeline) ListPending(context.Context) ([]*records.Record, error) {
	return f.pending, nil
}

type fakeReader struct {
	byKey map[string]*records.Record
	recs  []*records.Record
	stats records.StatsSummary
}

func (f *fakeReader) ListByStatus(_ context.Context, statuses ...records.Status) ([]*records.Record, error) {
	if len(statuses) == 0 {
		return f.recs, nil
	}
	var out []*records.Record
	for _, rec := range f.recs {
		for _, status := range statuses {
			if rec.Status == status {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func (f *fakeReader) GetByKey(_ context.Context, key string) (*records.Record, error) {
	if rec, ok := f.byKey[key]; ok {
		return rec, nil
	}
	return nil, records.ErrNotFound
}

func (f *fakeReader) Stats(context.Context) (records.StatsSummary, error) {
	return f.stats, nil
}

func TestSubmitReportsCreation(t *testing.T) {
	svc := api.NewRecordService(&fakePipeline{}, &fakeReader{})

	resp, err := svc.Submit(context.Background(), api.SubmitRequest{ExternalKey: "k", Title: "Engineer"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.Created || resp.Record.Title != "Engineer" || resp.Record.Status != "discovered" {
		t.Fatalf("resp = %+v", resp)
	}

	resp, err = svc.Submit(context.Background(), api.SubmitRequest{ExternalKey: "k"})
	if err != nil || resp.Created {
		t.Fatalf("resubmit: created=%v err=%v", resp.Created, err)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc := api.NewRecordService(&fakePipeline{}, &fakeReader{})
	if _, err := svc.List(context.Background(), "bogus"); err == nil {
		t.Fatal("expected unknown status error")
	}
}

func TestDescribeFallsBackToExternalKey(t *testing.T) {
	rec := &records.Record{ID: "rec-1", ExternalKey: "https://example.com/jobs/1", Status: records.StatusDrafted}
	svc := api.NewRecordService(&fakePipeline{}, &fakeReader{
		byKey: map[string]*records.Record{rec.ExternalKey: rec},
	})

	view, err := svc.Describe(context.Background(), rec.ExternalKey)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if view == nil || view.ID != "rec-1" {
		t.Fatalf("view = %+v", view)
	}

	view, err = svc.Describe(context.Background(), "missing")
	if err != nil || view != nil {
		t.Fatalf("missing ref: view=%v err=%v", view, err)
	}
}

func TestDecideValidatesDecision(t *testing.T) {
	pipe := &fakePipeline{}
	svc := api.NewRecordService(pipe, &fakeReader{})

	if _, err := svc.Decide(context.Background(), "rec-1", api.DecideRequest{Decision: "maybe"}); err == nil {
		t.Fatal("expected unknown decision error")
	}

	view, err := svc.Decide(context.Background(), "rec-1", api.DecideRequest{Decision: "approve"})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if pipe.decided != records.DecisionApprove || view.Status != "approved" {
		t.Fatalf("decided=%s view=%+v", pipe.decided, view)
	}
}

func TestViewFormatsTimestamps(t *testing.T) {
	deadline := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	rec := &records.Record{
		ID:               "rec-1",
		Status:           records.StatusAwaitingDecision,
		DecisionDeadline: &deadline,
		StageTimestamps:  map[string]time.Time{"drafted": deadline.Add(-48 * time.Hour)},
		CreatedAt:        deadline.Add(-72 * time.Hour),
	}

	view := api.FromRecord(rec)
	if view.DecisionDeadline != "2026-08-22T12:00:00.000Z" {
		t.Fatalf("deadline = %s", view.DecisionDeadline)
	}
	if view.StageTimestamps["drafted"] != "2026-08-20T12:00:00.000Z" {
		t.Fatalf("stamps = %v", view.StageTimestamps)
	}
}

func TestStatsConversion(t *testing.T) {
	svc := api.NewRecordService(&fakePipeline{}, &fakeReader{stats: records.StatsSummary{
		Total:    3,
		ByStatus: map[records.Status]int{records.StatusDiscovered: 2, records.StatusApproved: 1},
		Review:   1,
	}})

	resp, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if resp.Total != 3 || resp.ByStatus["discovered"] != 2 || resp.Review != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}
