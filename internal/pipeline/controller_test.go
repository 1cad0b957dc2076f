package pipeline_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"snatcher/internal/approval"
	"snatcher/internal/config"
	"snatcher/internal/logging"
	"snatcher/internal/notifications"
	"snatcher/internal/pipeline"
	"snatcher/internal/records"
	"snatcher/internal/services"
	"snatcher/internal/services/generator"
	"snatcher/internal/services/reasoner"
	"snatcher/internal/testsupport"
)

type fakeIngester struct {
	posting records.Posting
	err     error
}

func (f *fakeIngester) Fetch(ctx context.Context, url string) (records.Posting, error) {
	return f.posting, f.err
}

// fakeFast pops errors off a script before returning the final score.
type fakeFast struct {
	mu    sync.Mutex
	score float64
	errs  []error
	calls int
}

func (f *fakeFast) Score(ctx context.Context, text string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return 0, err
	}
	return f.score, nil
}

type fakeDeep struct {
	verdict reasoner.Verdict
	err     error
}

func (f *fakeDeep) Score(ctx context.Context, posting records.Posting, narrative string) (reasoner.Verdict, error) {
	return f.verdict, f.err
}

type fakeDrafter struct {
	letter string
	err    error
}

func (f *fakeDrafter) Draft(ctx context.Context, req generator.Request) (string, error) {
	return f.letter, f.err
}

// fakeLeaser counts acquisitions and verifies pairing with releases.
type fakeLeaser struct {
	mu       sync.Mutex
	acquires int
	releases int
	held     map[string]bool
	err      error
}

func newFakeLeaser() *fakeLeaser {
	return &fakeLeaser{held: make(map[string]bool)}
}

func (f *fakeLeaser) Acquire(ctx context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.acquires++
	f.held[recordID] = true
	return nil
}

func (f *fakeLeaser) Release(recordID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	delete(f.held, recordID)
}

func (f *fakeLeaser) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires, f.releases
}

type env struct {
	cfg     *config.Config
	store   *records.Store
	fast    *fakeFast
	deep    *fakeDeep
	drafter *fakeDrafter
	leaser  *fakeLeaser
	ctrl    *pipeline.Controller
}

func instantSleeper(context.Context, time.Duration) error { return nil }

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithNarrative(t, "Ten years of Go."))
	store := testsupport.MustOpenStore(t, cfg)

	e := &env{
		cfg:     cfg,
		store:   store,
		fast:    &fakeFast{score: 0.78},
		deep:    &fakeDeep{verdict: reasoner.Verdict{Score: 0.85, Explanation: "Strong fit."}},
		drafter: &fakeDrafter{letter: "Dear team, ..."},
		leaser:  newFakeLeaser(),
	}
	gate := approval.NewGate(cfg, store, notifications.Noop(), logging.NewNop())
	e.ctrl = pipeline.NewController(cfg, pipeline.Deps{
		Store:    store,
		Ingester: &fakeIngester{},
		Fast:     e.fast,
		Deep:     e.deep,
		Drafter:  e.drafter,
		Leaser:   e.leaser,
		Gate:     gate,
		Notifier: notifications.Noop(),
	}, logging.NewNop(), pipeline.WithSleeper(instantSleeper))
	return e
}

func posting() records.Posting {
	return records.Posting{
		Title:       "Platform Engineer",
		Company:     "Initech",
		Description: "Build and run Go services.",
	}
}

// advanceTo drives a record one stage at a time until it reaches want.
func advanceTo(t *testing.T, e *env, id string, want records.Status) *records.Record {
	t.Helper()
	var rec *records.Record
	for i := 0; i < 10; i++ {
		var err error
		rec, err = e.ctrl.Advance(context.Background(), id)
		if err != nil {
			t.Fatalf("advance from %s: %v", rec.Status, err)
		}
		fresh, err := e.store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if fresh.Status == want {
			return fresh
		}
		rec = fresh
	}
	t.Fatalf("record never reached %s (stuck at %s)", want, rec.Status)
	return nil
}

func TestEndToEndApprovalPath(t *testing.T) {
	e := newEnv(t)
	rec, created, err := e.ctrl.Submit(context.Background(), "https://example.com/jobs/A", posting())
	if err != nil || !created {
		t.Fatalf("submit: created=%v err=%v", created, err)
	}

	final := advanceTo(t, e, rec.ID, records.StatusAwaitingDecision)

	if final.CosineScore == nil || *final.CosineScore != 0.78 {
		t.Fatalf("cosine = %v", final.CosineScore)
	}
	if final.ReasoningScore == nil || *final.ReasoningScore != 0.85 {
		t.Fatalf("reasoning = %v", final.ReasoningScore)
	}
	if final.CombinedScore == nil || math.Abs(*final.CombinedScore-0.829) > 1e-9 {
		t.Fatalf("combined = %v, want 0.829", final.CombinedScore)
	}
	if final.DraftText == "" || final.DecisionDeadline == nil {
		t.Fatalf("draft=%q deadline=%v", final.DraftText, final.DecisionDeadline)
	}
	if acquires, releases := e.leaser.counts(); acquires != 1 || releases != 1 {
		t.Fatalf("lease acquires=%d releases=%d", acquires, releases)
	}

	decided, err := e.ctrl.Decide(context.Background(), rec.ID, records.DecisionApprove, "")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != records.StatusApproved || decided.FinalText != final.DraftText {
		t.Fatalf("decided = %s / %q", decided.Status, decided.FinalText)
	}
}

func TestEndToEndParkedPath(t *testing.T) {
	e := newEnv(t)
	e.fast.score = 0.42

	rec, _, err := e.ctrl.Submit(context.Background(), "https://example.com/jobs/B", posting())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	parked := advanceTo(t, e, rec.ID, records.StatusReasoningSkipped)
	if parked.ReasoningScore != nil {
		t.Fatalf("reasoning = %v, want nil on skip", parked.ReasoningScore)
	}
	if parked.CombinedScore == nil || math.Abs(*parked.CombinedScore-0.126) > 1e-9 {
		t.Fatalf("combined = %v, want 0.126", parked.CombinedScore)
	}
	if acquires, _ := e.leaser.counts(); acquires != 0 {
		t.Fatalf("lease acquired %d times for a skipped record", acquires)
	}

	// Below the notify threshold, advancing is a no-op and the daemon's work
	// query ignores the record.
	if _, err := e.ctrl.Advance(context.Background(), rec.ID); err != nil {
		t.Fatalf("advance parked: %v", err)
	}
	fresh, _ := e.store.GetByID(context.Background(), rec.ID)
	if fresh.Status != records.StatusReasoningSkipped || fresh.DraftText != "" {
		t.Fatalf("parked record moved: %s", fresh.Status)
	}
	next, err := e.ctrl.NextActionable(context.Background())
	if err != nil {
		t.Fatalf("next actionable: %v", err)
	}
	if next != nil {
		t.Fatalf("parked record still actionable: %s", next.ID)
	}

	// Promote overrides the threshold.
	promoted, err := e.ctrl.Promote(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.Status != records.StatusDrafted {
		t.Fatalf("status after promote = %s", promoted.Status)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	e := newEnv(t)
	first, created, err := e.ctrl.Submit(context.Background(), "https://example.com/jobs/1", posting())
	if err != nil || !created {
		t.Fatalf("first submit: created=%v err=%v", created, err)
	}
	second, created, err := e.ctrl.Submit(context.Background(), "https://example.com/jobs/1", posting())
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("duplicate submit: created=%v id=%s want %s", created, second.ID, first.ID)
	}
}

func TestTransientFailuresRetryWithinStage(t *testing.T) {
	e := newEnv(t)
	e.fast.errs = []error{
		services.Wrap(services.ErrTransient, "embedder", "embed", "timeout", nil),
		services.Wrap(services.ErrTransient, "embedder", "embed", "timeout", nil),
	}

	rec, _, _ := e.ctrl.Submit(context.Background(), "https://example.com/jobs/1", posting())
	if _, err := e.ctrl.Advance(context.Background(), rec.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}

	fresh, _ := e.store.GetByID(context.Background(), rec.ID)
	if fresh.Status != records.StatusCosineScored {
		t.Fatalf("status = %s", fresh.Status)
	}
	if fresh.NeedsReview {
		t.Fatal("recovered stage must not flag review")
	}
	if e.fast.calls != 3 {
		t.Fatalf("fast scorer called %d times, want 3", e.fast.calls)
	}
}

func TestTransientExhaustionFlagsReview(t *testing.T) {
	e := newEnv(t)
	transient := services.Wrap(services.ErrTransient, "embedder", "embed", "timeout", nil)
	e.fast.errs = []error{transient, transient, transient, transient, transient}

	rec, _, _ := e.ctrl.Submit(context.Background(), "https://example.com/jobs/1", posting())
	if _, err := e.ctrl.Advance(context.Background(), rec.ID); err == nil {
		t.Fatal("expected exhaustion error")
	}

	fresh, _ := e.store.GetByID(context.Background(), rec.ID)
	if fresh.Status != records.StatusDiscovered {
		t.Fatalf("status = %s, exhaustion must not transition", fresh.Status)
	}
	if !fresh.NeedsReview || fresh.Attempts("fast_score") != 1 {
		t.Fatalf("review=%v attempts=%d", fresh.NeedsReview, fresh.Attempts("fast_score"))
	}

	// Flagged records drop out of the daemon's work selection.
	next, err := e.ctrl.NextActionable(context.Background())
	if err != nil {
		t.Fatalf("next actionable: %v", err)
	}
	if next != nil {
		t.Fatalf("flagged record still actionable: %s", next.ID)
	}
}

func TestRetryClearsReviewFlag(t *testing.T) {
	e := newEnv(t)
	transient := services.Wrap(services.ErrTransient, "embedder", "embed", "timeout", nil)
	e.fast.errs = []error{transient, transient, transient, transient, transient}

	rec, _, _ := e.ctrl.Submit(context.Background(), "https://example.com/jobs/1", posting())
	if _, err := e.ctrl.Advance(context.Background(), rec.ID); err == nil {
		t.Fatal("expected exhaustion error")
	}

	resumed, err := e.ctrl.Retry(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if resumed.NeedsReview || resumed.Attempts("fast_score") != 0 {
		t.Fatalf("review=%v attempts=%d after retry", resumed.NeedsReview, resumed.Attempts("fast_score"))
	}

	// The record is back in the work selection and the stage succeeds now
	// that the scorer has recovered.
	next, err := e.ctrl.NextActionable(context.Background())
	if err != nil || next == nil || next.ID != rec.ID {
		t.Fatalf("next actionable = %v, %v", next, err)
	}
	advanceTo(t, e, rec.ID, records.StatusCosineScored)

	// Retrying an unflagged record is rejected.
	if _, err := e.ctrl.Retry(context.Background(), rec.ID); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
}

func TestPermanentGenerationFailureIsTerminal(t *testing.T) {
	e := newEnv(t)
	e.drafter.err = services.Wrap(services.ErrPermanent, "generator", "draft", "model returned empty letter", nil)

	rec, _, _ := e.ctrl.Submit(context.Background(), "https://example.com/jobs/1", posting())
	advanceTo(t, e, rec.ID, records.StatusReasoningScored)

	if _, err := e.ctrl.Advance(context.Background(), rec.ID); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
	fresh, _ := e.store.GetByID(context.Background(), rec.ID)
	if fresh.Status != records.StatusDraftFailed {
		t.Fatalf("status = %s, want draft_failed", fresh.Status)
	}

	// draft_failed is absorbing.
	if _, err := e.ctrl.Advance(context.Background(), rec.ID); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("advance on terminal: expected ErrPrecondition, got %v", err)
	}
}

func TestLeaseReleasedWhenDeepScoreFails(t *testing.T) {
	e := newEnv(t)
	e.deep.err = services.Wrap(services.ErrPermanent, "reasoner", "score", "unparseable verdict", nil)

	rec, _, _ := e.ctrl.Submit(context.Background(), "https://example.com/jobs/1", posting())
	advanceTo(t, e, rec.ID, records.StatusReasoningPending)

	if _, err := e.ctrl.Advance(context.Background(), rec.ID); !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected ErrPermanent, got %v", err)
	}
	if acquires, releases := e.leaser.counts(); acquires != 1 || releases != 1 {
		t.Fatalf("lease acquires=%d releases=%d", acquires, releases)
	}
	fresh, _ := e.store.GetByID(context.Background(), rec.ID)
	if fresh.Status != records.StatusReasoningPending || !fresh.NeedsReview {
		t.Fatalf("status=%s review=%v", fresh.Status, fresh.NeedsReview)
	}
}

func TestResourceUnavailableParksRecordForRetry(t *testing.T) {
	e := newEnv(t)
	e.leaser.err = services.Wrap(services.ErrResourceUnavailable, "wol", "wake", "host never answered", nil)

	rec, _, _ := e.ctrl.Submit(context.Background(), "https://example.com/jobs/1", posting())
	advanceTo(t, e, rec.ID, records.StatusReasoningPending)

	if _, err := e.ctrl.Advance(context.Background(), rec.ID); !errors.Is(err, services.ErrResourceUnavailable) {
		t.Fatalf("expected ErrResourceUnavailable, got %v", err)
	}
	fresh, _ := e.store.GetByID(context.Background(), rec.ID)
	if fresh.Status != records.StatusReasoningPending {
		t.Fatalf("status = %s, want reasoning_pending for manual re-run", fresh.Status)
	}
	if !fresh.NeedsReview {
		t.Fatal("exhausted wake budget must flag review")
	}

	// Flagged, the record stops cycling through the dispatcher; the daemon
	// must not re-wake a host that will not answer.
	next, err := e.ctrl.NextActionable(context.Background())
	if err != nil {
		t.Fatalf("next actionable: %v", err)
	}
	if next != nil {
		t.Fatalf("flagged record still actionable: %s", next.ID)
	}

	// Once the host is back an operator resumes deep scoring with retry.
	e.leaser.err = nil
	if _, err := e.ctrl.Retry(context.Background(), rec.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	advanceTo(t, e, rec.ID, records.StatusReasoningScored)
}

func TestAdvanceRejectsDecisionPendingRecords(t *testing.T) {
	e := newEnv(t)
	rec, _, _ := e.ctrl.Submit(context.Background(), "https://example.com/jobs/1", posting())
	advanceTo(t, e, rec.ID, records.StatusAwaitingDecision)

	if _, err := e.ctrl.Advance(context.Background(), rec.ID); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
}

func TestIngestFillsMissingPosting(t *testing.T) {
	e := newEnv(t)
	rec, _, err := e.ctrl.Submit(context.Background(), "https://example.com/jobs/url-only", records.Posting{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	gate := approval.NewGate(e.cfg, e.store, notifications.Noop(), logging.NewNop())
	ctrl := pipeline.NewController(e.cfg, pipeline.Deps{
		Store:    e.store,
		Ingester: &fakeIngester{posting: posting()},
		Fast:     e.fast,
		Deep:     e.deep,
		Drafter:  e.drafter,
		Leaser:   e.leaser,
		Gate:     gate,
		Notifier: notifications.Noop(),
	}, logging.NewNop(), pipeline.WithSleeper(instantSleeper))

	if _, err := ctrl.Advance(context.Background(), rec.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	fresh, _ := e.store.GetByID(context.Background(), rec.ID)
	if fresh.Title != "Platform Engineer" || fresh.Company != "Initech" {
		t.Fatalf("posting not filled: %q / %q", fresh.Title, fresh.Company)
	}
	if fresh.Status != records.StatusCosineScored {
		t.Fatalf("status = %s", fresh.Status)
	}
}
