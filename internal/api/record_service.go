package api

import (
	"context"
	"errors"
	"strings"

	"snatcher/internal/records"
	"snatcher/internal/services"
)

// Pipeline abstracts the lifecycle operations the service exposes over
// transport. The pipeline controller satisfies it.
type Pipeline interface {
	Submit(ctx context.Context, externalKey string, posting records.Posting) (*records.Record, bool, error)
	Advance(ctx context.Context, id string) (*records.Record, error)
	Promote(ctx context.Context, id string) (*records.Record, error)
	Retry(ctx context.Context, id string) (*records.Record, error)
	Decide(ctx context.Context, id string, decision records.Decision, finalText string) (*records.Record, error)
	GetStatus(ctx context.Context, id string) (*records.Record, error)
	ListPending(ctx context.Context) ([]*records.Record, error)
}

// RecordReader abstracts store queries needed for read-only views.
type RecordReader interface {
	ListByStatus(ctx context.Context, statuses ...records.Status) ([]*records.Record, error)
	GetByKey(ctx context.Context, externalKey string) (*records.Record, error)
	Stats(ctx context.Context) (records.StatsSummary, error)
}

// RecordService exposes pipeline operations returning API DTOs.
type RecordService struct {
	pipeline Pipeline
	store    RecordReader
}

// NewRecordService constructs a RecordService around the provided collaborators.
func NewRecordService(pipeline Pipeline, store RecordReader) *RecordService {
	if pipeline == nil || store == nil {
		return nil
	}
	return &RecordService{pipeline: pipeline, store: store}
}

// Submit registers a posting and reports whether a record was created.
func (s *RecordService) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if s == nil {
		return SubmitResponse{}, services.Wrap(services.ErrPrecondition, "api", "submit", "service unavailable", nil)
	}
	posting := records.Posting{
		Title:       req.Title,
		Company:     req.Company,
		Description: req.Description,
		Location:    req.Location,
		Source:      req.Source,
	}
	rec, created, err := s.pipeline.Submit(ctx, req.ExternalKey, posting)
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{Record: FromRecord(rec), Created: created}, nil
}

// List returns records filtered by status, or all records when no status is
// provided. Unknown status strings are rejected.
func (s *RecordService) List(ctx context.Context, statuses ...string) ([]RecordView, error) {
	if s == nil {
		return nil, nil
	}
	parsed := make([]records.Status, 0, len(statuses))
	for _, value := range statuses {
		status, ok := records.ParseStatus(value)
		if !ok {
			return nil, services.Wrap(services.ErrPrecondition, "api", "list", "unknown status "+value, nil)
		}
		parsed = append(parsed, status)
	}
	recs, err := s.store.ListByStatus(ctx, parsed...)
	if err != nil {
		return nil, err
	}
	return FromRecords(recs), nil
}

// Describe fetches a single record by ID, falling back to the external key so
// operators can paste a posting URL.
func (s *RecordService) Describe(ctx context.Context, ref string) (*RecordView, error) {
	if s == nil {
		return nil, nil
	}
	ref = strings.TrimSpace(ref)
	rec, err := s.pipeline.GetStatus(ctx, ref)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		rec, err = s.store.GetByKey(ctx, ref)
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
	}
	view := FromRecord(rec)
	return &view, nil
}

// Pending lists records awaiting a reviewer decision.
func (s *RecordService) Pending(ctx context.Context) ([]RecordView, error) {
	if s == nil {
		return nil, nil
	}
	recs, err := s.pipeline.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return FromRecords(recs), nil
}

// Advance moves a record through one pipeline stage.
func (s *RecordService) Advance(ctx context.Context, id string) (RecordView, error) {
	rec, err := s.pipeline.Advance(ctx, id)
	if err != nil {
		return FromRecord(rec), err
	}
	return FromRecord(rec), nil
}

// Promote forces letter generation for a parked record.
func (s *RecordService) Promote(ctx context.Context, id string) (RecordView, error) {
	rec, err := s.pipeline.Promote(ctx, id)
	if err != nil {
		return FromRecord(rec), err
	}
	return FromRecord(rec), nil
}

// Retry clears the review flag so the daemon resumes a stalled record.
func (s *RecordService) Retry(ctx context.Context, id string) (RecordView, error) {
	rec, err := s.pipeline.Retry(ctx, id)
	if err != nil {
		return FromRecord(rec), err
	}
	return FromRecord(rec), nil
}

// Decide applies a reviewer verdict. The decision string is validated here so
// transport layers share one parser.
func (s *RecordService) Decide(ctx context.Context, id string, req DecideRequest) (RecordView, error) {
	decision, ok := records.ParseDecision(req.Decision)
	if !ok {
		return RecordView{}, services.Wrap(services.ErrPrecondition, "api", "decide", "unknown decision "+req.Decision, nil)
	}
	rec, err := s.pipeline.Decide(ctx, id, decision, req.FinalText)
	if err != nil {
		return FromRecord(rec), err
	}
	return FromRecord(rec), nil
}

// Stats returns record counts grouped by status.
func (s *RecordService) Stats(ctx context.Context) (StatsResponse, error) {
	if s == nil {
		return StatsResponse{}, nil
	}
	summary, err := s.store.Stats(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	return FromStats(summary), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, records.ErrNotFound)
}
