package records

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an application record.
type Status string

const (
	StatusDiscovered       Status = "discovered"
	StatusCosineScored     Status = "cosine_scored"
	StatusReasoningPending Status = "reasoning_pending"
	StatusReasoningScored  Status = "reasoning_scored"
	StatusReasoningSkipped Status = "reasoning_skipped"
	StatusDrafted          Status = "drafted"
	StatusDraftFailed      Status = "draft_failed"
	StatusAwaitingDecision Status = "awaiting_decision"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusExpired          Status = "expired"
)

var allStatuses = []Status{
	StatusDiscovered,
	StatusCosineScored,
	StatusReasoningPending,
	StatusReasoningScored,
	StatusReasoningSkipped,
	StatusDrafted,
	StatusDraftFailed,
	StatusAwaitingDecision,
	StatusApproved,
	StatusRejected,
	StatusExpired,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// terminalStatuses are absorbing: no event moves a record out of them.
var terminalStatuses = map[Status]struct{}{
	StatusDraftFailed: {},
	StatusApproved:    {},
	StatusRejected:    {},
	StatusExpired:     {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is absorbing.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// Posting holds the fields extracted from a job posting at ingestion time.
type Posting struct {
	Title       string
	Company     string
	Description string
	Location    string
	Source      string
}

// Record is one application tracked through the pipeline.
type Record struct {
	ID          string
	ExternalKey string
	Status      Status

	Title       string
	Company     string
	Description string
	Location    string
	Source      string

	CosineScore          *float64
	ReasoningScore       *float64
	CombinedScore        *float64
	ReasoningExplanation string

	DraftText string
	FinalText string

	DecisionDeadline *time.Time

	AttemptCounts   map[string]int
	StageTimestamps map[string]time.Time

	NeedsReview  bool
	ReviewReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attempts returns the retry counter for a stage.
func (r *Record) Attempts(stage string) int {
	if r.AttemptCounts == nil {
		return 0
	}
	return r.AttemptCounts[stage]
}

// BumpAttempts increments the retry counter for a stage.
func (r *Record) BumpAttempts(stage string) {
	if r.AttemptCounts == nil {
		r.AttemptCounts = make(map[string]int, 1)
	}
	r.AttemptCounts[stage]++
}

// ClearAttempts resets the retry counter when a stage completes.
func (r *Record) ClearAttempts(stage string) {
	if r.AttemptCounts != nil {
		delete(r.AttemptCounts, stage)
	}
}

// StampStage records the transition time for a stage. Existing stamps are
// never overwritten; the history is append-only.
func (r *Record) StampStage(stage string, at time.Time) {
	if r.StageTimestamps == nil {
		r.StageTimestamps = make(map[string]time.Time, 1)
	}
	if _, ok := r.StageTimestamps[stage]; !ok {
		r.StageTimestamps[stage] = at.UTC()
	}
}

// FlagReview marks a record for manual inspection without changing status.
func (r *Record) FlagReview(reason string) {
	r.NeedsReview = true
	r.ReviewReason = reason
}

// ClearReview removes the inspection flag and zeroes all retry counters so
// the daemon picks the record up again.
func (r *Record) ClearReview() {
	r.NeedsReview = false
	r.ReviewReason = ""
	r.AttemptCounts = nil
}

// Decision is a reviewer verdict on a drafted application.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionEdit    Decision = "edit"

	// DecisionExpired closes a request the sweep timed out. It is never
	// accepted from reviewers, so ParseDecision rejects it.
	DecisionExpired Decision = "expired"
)

// ParseDecision converts a string into a known Decision.
func ParseDecision(value string) (Decision, bool) {
	normalized := Decision(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case DecisionApprove, DecisionReject, DecisionEdit:
		return normalized, true
	}
	return "", false
}

// ApprovalRequest tracks one pending human decision.
type ApprovalRequest struct {
	ID           int64
	RecordID     string
	IssuedAt     time.Time
	Deadline     time.Time
	ReminderSent bool
	Decision     *Decision
	DecidedAt    *time.Time
}

// Pending reports whether the request still awaits a decision.
func (a *ApprovalRequest) Pending() bool {
	return a != nil && a.Decision == nil
}

// StatsSummary aggregates record counts per lifecycle state.
type StatsSummary struct {
	Total    int
	ByStatus map[Status]int
	Review   int
}
