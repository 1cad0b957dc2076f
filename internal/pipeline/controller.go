// Package pipeline drives application records through the evaluation
// lifecycle: fast scoring, gated deep scoring on the exclusive compute host,
// score combination, letter generation, and hand-off to the approval gate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"snatcher/internal/approval"
	"snatcher/internal/config"
	"snatcher/internal/logging"
	"snatcher/internal/metrics"
	"snatcher/internal/notifications"
	"snatcher/internal/records"
	"snatcher/internal/scoring"
	"snatcher/internal/services"
	"snatcher/internal/services/generator"
	"snatcher/internal/services/reasoner"
)

// Stage names used for attempt counters and log fields.
const (
	stageIngest    = "ingest"
	stageFastScore = "fast_score"
	stageDeepScore = "deep_score"
	stageGenerate  = "generate"
)

// Ingester fetches posting fields for records submitted by URL only.
type Ingester interface {
	Fetch(ctx context.Context, postingURL string) (records.Posting, error)
}

// FastScorer produces the cosine similarity score for posting text.
type FastScorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// DeepScorer produces the reasoning verdict on the exclusive compute host.
// The pipeline holds the lease for the duration of the call.
type DeepScorer interface {
	Score(ctx context.Context, posting records.Posting, narrative string) (reasoner.Verdict, error)
}

// Generator drafts the cover letter for a gated record.
type Generator interface {
	Draft(ctx context.Context, req generator.Request) (string, error)
}

// Leaser serializes deep scoring on the compute host.
type Leaser interface {
	Acquire(ctx context.Context, recordID string) error
	Release(recordID string)
}

// Controller owns record lifecycle transitions. One instance per daemon.
type Controller struct {
	cfg      *config.Config
	store    *records.Store
	ingester Ingester
	fast     FastScorer
	deep     DeepScorer
	drafter  Generator
	leaser   Leaser
	gate     *approval.Gate
	notifier notifications.Service
	combiner scoring.Combiner
	logger   *slog.Logger
	sink     metrics.Sink
	retry    retryPolicy

	narrativeOnce sync.Once
	narrative     string
	narrativeErr  error
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSleeper overrides the retry sleeper, for tests.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) {
		if s != nil {
			c.retry.sleeper = s
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(c *Controller) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// Deps bundles the collaborators a Controller needs.
type Deps struct {
	Store    *records.Store
	Ingester Ingester
	Fast     FastScorer
	Deep     DeepScorer
	Drafter  Generator
	Leaser   Leaser
	Gate     *approval.Gate
	Notifier notifications.Service
}

// NewController wires the pipeline from configuration and collaborators.
func NewController(cfg *config.Config, deps Deps, logger *slog.Logger, opts ...Option) *Controller {
	base := time.Duration(cfg.Workflow.RetryBaseSeconds) * time.Second
	if base <= 0 {
		base = 2 * time.Second
	}
	attempts := cfg.Workflow.RetryMaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	c := &Controller{
		cfg:      cfg,
		store:    deps.Store,
		ingester: deps.Ingester,
		fast:     deps.Fast,
		deep:     deps.Deep,
		drafter:  deps.Drafter,
		leaser:   deps.Leaser,
		gate:     deps.Gate,
		notifier: deps.Notifier,
		combiner: scoring.NewCombiner(cfg.Matching.CosineWeight),
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		sink:     metrics.Noop{},
		retry:    retryPolicy{base: base, attempts: attempts, sleeper: defaultSleeper},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit registers a posting for evaluation. Resubmitting the same external
// key returns the existing record unchanged; the bool reports creation.
func (c *Controller) Submit(ctx context.Context, externalKey string, posting records.Posting) (*records.Record, bool, error) {
	externalKey = strings.TrimSpace(externalKey)
	if externalKey == "" {
		return nil, false, services.Wrap(services.ErrPrecondition, "pipeline", "submit", "external key is required", nil)
	}

	rec, created, err := c.store.CreateIfAbsent(ctx, externalKey, posting)
	if err != nil {
		return nil, false, err
	}
	if created {
		c.sink.Increment("pipeline.submitted", nil)
		c.logger.Info("record submitted",
			logging.String(logging.FieldRecordID, rec.ID),
			logging.String("external_key", externalKey))
	} else {
		c.logger.Debug("duplicate submission",
			logging.String(logging.FieldRecordID, rec.ID),
			logging.String("external_key", externalKey))
	}
	return rec, created, nil
}

// Advance moves a record through exactly one stage. Records in terminal or
// decision-pending states reject the call with ErrPrecondition. A parked
// record (scored below the notify threshold) is a no-op.
func (c *Controller) Advance(ctx context.Context, id string) (*records.Record, error) {
	rec, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = services.WithRecordID(ctx, rec.ID)

	start := time.Now()
	var stageErr error
	switch rec.Status {
	case records.StatusDiscovered:
		stageErr = c.stageFastScore(ctx, rec)
	case records.StatusCosineScored:
		stageErr = c.stageGateDecision(ctx, rec)
	case records.StatusReasoningPending:
		stageErr = c.stageDeepScore(ctx, rec)
	case records.StatusReasoningScored, records.StatusReasoningSkipped:
		stageErr = c.stageGenerate(ctx, rec, false)
	case records.StatusDrafted:
		stageErr = c.gate.Issue(ctx, rec)
	default:
		return rec, services.Wrap(services.ErrPrecondition, "pipeline", "advance",
			fmt.Sprintf("no automatic transition from %s", rec.Status), nil)
	}

	c.sink.Observe("pipeline.stage_seconds", time.Since(start).Seconds(),
		map[string]string{"status": string(rec.Status)})
	if stageErr != nil {
		c.sink.Increment("pipeline.stage_failures", map[string]string{"status": string(rec.Status)})
		return rec, stageErr
	}
	c.sink.Increment("pipeline.stage_completions", map[string]string{"status": string(rec.Status)})
	return rec, nil
}

// Promote is the operator override for parked records: it forces letter
// generation regardless of the notify threshold.
func (c *Controller) Promote(ctx context.Context, id string) (*records.Record, error) {
	rec, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != records.StatusReasoningScored && rec.Status != records.StatusReasoningSkipped {
		return rec, services.Wrap(services.ErrPrecondition, "pipeline", "promote",
			fmt.Sprintf("cannot promote from %s", rec.Status), nil)
	}
	ctx = services.WithRecordID(ctx, rec.ID)
	c.sink.Increment("pipeline.promoted", nil)
	if err := c.stageGenerate(ctx, rec, true); err != nil {
		return rec, err
	}
	return rec, nil
}

// Retry clears the review flag on a record so the daemon resumes advancing
// it from its current status. Attempt counters are reset with the flag.
func (c *Controller) Retry(ctx context.Context, id string) (*records.Record, error) {
	rec, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.NeedsReview {
		return rec, services.Wrap(services.ErrPrecondition, "pipeline", "retry",
			"record is not flagged for review", nil)
	}
	rec.ClearReview()
	if err := c.store.ConditionalUpdate(ctx, rec, rec.Status); err != nil {
		return nil, err
	}
	c.sink.Increment("pipeline.retried", nil)
	c.logger.Info("review flag cleared",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.String("status", string(rec.Status)))
	return rec, nil
}

// Decide forwards a reviewer verdict to the approval gate.
func (c *Controller) Decide(ctx context.Context, id string, decision records.Decision, finalText string) (*records.Record, error) {
	return c.gate.Decide(ctx, id, decision, finalText)
}

// GetStatus fetches a record by ID.
func (c *Controller) GetStatus(ctx context.Context, id string) (*records.Record, error) {
	return c.store.GetByID(ctx, id)
}

// ListPending lists records awaiting a reviewer decision.
func (c *Controller) ListPending(ctx context.Context) ([]*records.Record, error) {
	return c.store.ListByStatus(ctx, records.StatusAwaitingDecision)
}

// NextActionable exposes the store's work-selection query to the daemon.
func (c *Controller) NextActionable(ctx context.Context) (*records.Record, error) {
	return c.store.NextActionable(ctx, c.cfg.Matching.NotifyThreshold)
}

// ListActionable returns up to limit advanceable records for the worker pool.
func (c *Controller) ListActionable(ctx context.Context, limit int) ([]*records.Record, error) {
	return c.store.ListActionable(ctx, c.cfg.Matching.NotifyThreshold, limit)
}

// stageFastScore ingests missing posting fields and computes the cosine
// score: discovered → cosine_scored.
func (c *Controller) stageFastScore(ctx context.Context, rec *records.Record) error {
	if strings.TrimSpace(rec.Description) == "" {
		var posting records.Posting
		err := c.retry.run(ctx, func() error {
			var fetchErr error
			posting, fetchErr = c.ingester.Fetch(ctx, rec.ExternalKey)
			return fetchErr
		})
		if err != nil {
			return c.failStage(ctx, rec, stageIngest, err)
		}
		rec.Title = posting.Title
		rec.Company = posting.Company
		rec.Description = posting.Description
		rec.Location = posting.Location
		rec.Source = posting.Source
	}

	text := postingText(rec)
	var score float64
	err := c.retry.run(ctx, func() error {
		var scoreErr error
		score, scoreErr = c.fast.Score(ctx, text)
		return scoreErr
	})
	if err != nil {
		return c.failStage(ctx, rec, stageFastScore, err)
	}

	rec.CosineScore = &score
	rec.Status = records.StatusCosineScored
	rec.StampStage(string(records.StatusCosineScored), time.Now())
	rec.ClearAttempts(stageIngest)
	rec.ClearAttempts(stageFastScore)
	c.sink.Observe("pipeline.cosine_score", score, nil)
	c.logger.Info("fast score computed",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.Float64("cosine", score))
	return c.store.ConditionalUpdate(ctx, rec, records.StatusDiscovered)
}

// stageGateDecision routes a cosine-scored record: at or above the gating
// threshold it queues for deep scoring, below it is skipped and the combined
// score is sealed with reasoning treated as zero.
func (c *Controller) stageGateDecision(ctx context.Context, rec *records.Record) error {
	if rec.CosineScore == nil {
		return services.Wrap(services.ErrPrecondition, "pipeline", "gate", "cosine score missing", nil)
	}

	if *rec.CosineScore >= c.cfg.Matching.GatingThreshold {
		rec.Status = records.StatusReasoningPending
	} else {
		combined := c.combiner.Combine(*rec.CosineScore, nil)
		rec.CombinedScore = &combined
		rec.Status = records.StatusReasoningSkipped
		c.sink.Increment("pipeline.deep_score_skipped", nil)
	}
	rec.StampStage(string(rec.Status), time.Now())
	c.logger.Info("gating decision",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.Float64("cosine", *rec.CosineScore),
		logging.String("next", string(rec.Status)))
	return c.store.ConditionalUpdate(ctx, rec, records.StatusCosineScored)
}

// stageDeepScore runs the reasoning model under the compute lease:
// reasoning_pending → reasoning_scored. A host that exhausts its wake budget
// flags the record for review so the daemon stops re-waking it; an operator
// resumes it with retry once the host is back.
func (c *Controller) stageDeepScore(ctx context.Context, rec *records.Record) error {
	if rec.CosineScore == nil {
		return services.Wrap(services.ErrPrecondition, "pipeline", "deep score", "cosine score missing", nil)
	}
	narrative, err := c.loadNarrative()
	if err != nil {
		return err
	}

	if err := c.leaser.Acquire(ctx, rec.ID); err != nil {
		c.sink.Increment("pipeline.lease_failures", nil)
		if errors.Is(err, services.ErrResourceUnavailable) {
			return c.failStage(ctx, rec, stageDeepScore, err)
		}
		return err
	}
	defer c.leaser.Release(rec.ID)

	posting := recordPosting(rec)
	var verdict reasoner.Verdict
	err = c.retry.run(ctx, func() error {
		var scoreErr error
		verdict, scoreErr = c.deep.Score(ctx, posting, narrative)
		return scoreErr
	})
	if err != nil {
		return c.failStage(ctx, rec, stageDeepScore, err)
	}

	combined := c.combiner.Combine(*rec.CosineScore, &verdict.Score)
	rec.ReasoningScore = &verdict.Score
	rec.ReasoningExplanation = verdict.Explanation
	rec.CombinedScore = &combined
	rec.Status = records.StatusReasoningScored
	rec.StampStage(string(records.StatusReasoningScored), time.Now())
	rec.ClearAttempts(stageDeepScore)
	c.sink.Observe("pipeline.reasoning_score", verdict.Score, nil)
	c.sink.Observe("pipeline.combined_score", combined, nil)
	c.logger.Info("deep score computed",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.Float64("reasoning", verdict.Score),
		logging.Float64("combined", combined))
	return c.store.ConditionalUpdate(ctx, rec, records.StatusReasoningPending)
}

// stageGenerate drafts the letter for records clearing the notify threshold:
// reasoning_scored|reasoning_skipped → drafted. Below the threshold the
// record parks unless force (Promote) is set.
func (c *Controller) stageGenerate(ctx context.Context, rec *records.Record, force bool) error {
	if rec.CombinedScore == nil {
		return services.Wrap(services.ErrPrecondition, "pipeline", "generate", "combined score missing", nil)
	}
	if !force && *rec.CombinedScore < c.cfg.Matching.NotifyThreshold {
		c.logger.Debug("record parked below notify threshold",
			logging.String(logging.FieldRecordID, rec.ID),
			logging.Float64("combined", *rec.CombinedScore))
		return nil
	}

	narrative, err := c.loadNarrative()
	if err != nil {
		return err
	}

	expected := rec.Status
	draftReq := generator.Request{
		Posting:              recordPosting(rec),
		Narrative:            narrative,
		ReasoningExplanation: rec.ReasoningExplanation,
		ContactName:          c.cfg.Profile.ContactName,
	}
	var letter string
	err = c.retry.run(ctx, func() error {
		var draftErr error
		letter, draftErr = c.drafter.Draft(ctx, draftReq)
		return draftErr
	})
	if err != nil {
		if !services.IsTransient(err) {
			return c.failDraft(ctx, rec, expected, err)
		}
		return c.failStage(ctx, rec, stageGenerate, err)
	}

	rec.DraftText = letter
	rec.Status = records.StatusDrafted
	rec.StampStage(string(records.StatusDrafted), time.Now())
	rec.ClearAttempts(stageGenerate)
	c.logger.Info("letter drafted", logging.String(logging.FieldRecordID, rec.ID))
	return c.store.ConditionalUpdate(ctx, rec, expected)
}

// failStage records a stage failure: permanent scoring errors and exhausted
// transient retries both flag the record for review while keeping its status,
// so an operator decides what happens next.
func (c *Controller) failStage(ctx context.Context, rec *records.Record, stage string, cause error) error {
	rec.BumpAttempts(stage)
	rec.FlagReview(fmt.Sprintf("%s: %v", stage, cause))
	if err := c.store.ConditionalUpdate(ctx, rec, rec.Status); err != nil {
		c.logger.Warn("persist review flag", logging.Error(err))
	}
	c.sink.Increment("pipeline.needs_review", map[string]string{"stage": stage})
	c.logger.Error("stage failed",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.String(logging.FieldStage, stage),
		logging.Error(cause))
	return cause
}

// failDraft is the one stage with a terminal failure state: permanent
// generation errors move the record to draft_failed.
func (c *Controller) failDraft(ctx context.Context, rec *records.Record, expected records.Status, cause error) error {
	rec.Status = records.StatusDraftFailed
	rec.StampStage(string(records.StatusDraftFailed), time.Now())
	rec.FlagReview(fmt.Sprintf("%s: %v", stageGenerate, cause))
	if err := c.store.ConditionalUpdate(ctx, rec, expected); err != nil {
		c.logger.Warn("persist draft failure", logging.Error(err))
	}
	c.sink.Increment("pipeline.draft_failed", nil)
	c.logger.Error("letter generation failed permanently",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.Error(cause))
	if notifyErr := c.notifier.NotifyDraftFailed(ctx, rec, cause.Error()); notifyErr != nil {
		c.logger.Warn("draft-failed notification failed", logging.Error(notifyErr))
	}
	return cause
}

// loadNarrative reads the candidate narrative once and caches it.
func (c *Controller) loadNarrative() (string, error) {
	c.narrativeOnce.Do(func() {
		raw, err := os.ReadFile(c.cfg.Profile.NarrativePath)
		if err != nil {
			c.narrativeErr = services.Wrap(services.ErrConfiguration, "pipeline", "narrative", "read narrative file", err)
			return
		}
		c.narrative = strings.TrimSpace(string(raw))
		if c.narrative == "" {
			c.narrativeErr = services.Wrap(services.ErrConfiguration, "pipeline", "narrative", "narrative file is empty", nil)
		}
	})
	return c.narrative, c.narrativeErr
}

func recordPosting(rec *records.Record) records.Posting {
	return records.Posting{
		Title:       rec.Title,
		Company:     rec.Company,
		Description: rec.Description,
		Location:    rec.Location,
		Source:      rec.Source,
	}
}

func postingText(rec *records.Record) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{rec.Title, rec.Company, rec.Description} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n")
}
