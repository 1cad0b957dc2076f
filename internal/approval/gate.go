// Package approval owns the human decision gate: issuing requests when a
// draft is ready, applying reviewer decisions exactly once, and sweeping
// overdue requests for reminders and hard expiry.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"snatcher/internal/config"
	"snatcher/internal/logging"
	"snatcher/internal/metrics"
	"snatcher/internal/notifications"
	"snatcher/internal/records"
	"snatcher/internal/services"
)

// Gate mediates every decision on a drafted application.
type Gate struct {
	store      *records.Store
	notifier   notifications.Service
	window     time.Duration
	hardExpiry time.Duration
	logger     *slog.Logger
	sink       metrics.Sink
	now        func() time.Time
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(g *Gate) {
		if sink != nil {
			g.sink = sink
		}
	}
}

// NewGate builds the approval gate from configuration.
func NewGate(cfg *config.Config, store *records.Store, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Gate {
	window := time.Duration(cfg.Approval.WindowHours) * time.Hour
	if window <= 0 {
		window = 48 * time.Hour
	}
	hardExpiry := time.Duration(cfg.Approval.HardExpiryHours) * time.Hour
	if hardExpiry < window {
		hardExpiry = window
	}
	g := &Gate{
		store:      store,
		notifier:   notifier,
		window:     window,
		hardExpiry: hardExpiry,
		logger:     logging.NewComponentLogger(logger, "approval"),
		sink:       metrics.Noop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Issue opens an approval request for a drafted record and moves it to
// awaiting_decision. Notification delivery is best effort; the transition
// stands even when the curator cannot be reached.
func (g *Gate) Issue(ctx context.Context, rec *records.Record) error {
	if rec.Status != records.StatusDrafted {
		return services.Wrap(services.ErrPrecondition, "approval", "issue",
			"record is not in drafted state", nil)
	}

	now := g.now().UTC()
	deadline := now.Add(g.window)

	req, err := g.store.CreateApprovalRequest(ctx, rec.ID, now, deadline)
	if err != nil {
		return services.Wrap(services.ErrTransient, "approval", "issue", "create approval request", err)
	}

	rec.Status = records.StatusAwaitingDecision
	rec.DecisionDeadline = &deadline
	rec.StampStage(string(records.StatusAwaitingDecision), now)
	if err := g.store.ConditionalUpdate(ctx, rec, records.StatusDrafted); err != nil {
		// Close the orphaned request so the sweep never reminds about it.
		if closeErr := g.store.ResolveApproval(ctx, req.ID, records.DecisionExpired, now); closeErr != nil {
			g.logger.Warn("close orphaned approval request", logging.Error(closeErr))
		}
		return err
	}

	g.sink.Increment("approval.issued", nil)
	if err := g.notifier.NotifyAwaitingDecision(ctx, rec); err != nil {
		g.logger.Warn("awaiting-decision notification failed",
			logging.String(logging.FieldRecordID, rec.ID),
			logging.Error(err))
		g.sink.Increment("approval.notify_failures", nil)
	}
	return nil
}

// Decide applies a reviewer verdict exactly once. An edit decision must carry
// the reviewer's final letter text; approve keeps the draft as final.
func (g *Gate) Decide(ctx context.Context, recordID string, decision records.Decision, finalText string) (*records.Record, error) {
	rec, err := g.store.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status != records.StatusAwaitingDecision {
		return nil, services.Wrap(services.ErrPrecondition, "approval", "decide",
			"record is not awaiting a decision", nil)
	}

	req, err := g.store.PendingApproval(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, services.Wrap(services.ErrPrecondition, "approval", "decide",
			"no pending approval request for record", nil)
	}

	finalText = strings.TrimSpace(finalText)
	if decision == records.DecisionEdit && finalText == "" {
		return nil, services.Wrap(services.ErrPrecondition, "approval", "decide",
			"edit decision requires final letter text", nil)
	}

	now := g.now().UTC()
	switch decision {
	case records.DecisionApprove:
		rec.Status = records.StatusApproved
		rec.FinalText = rec.DraftText
	case records.DecisionEdit:
		rec.Status = records.StatusApproved
		rec.FinalText = finalText
	case records.DecisionReject:
		rec.Status = records.StatusRejected
	default:
		return nil, services.Wrap(services.ErrPrecondition, "approval", "decide",
			"unknown decision", nil)
	}
	rec.StampStage(string(rec.Status), now)

	// One transaction: the request must never be consumed while the record
	// stays awaiting_decision.
	if err := g.store.ResolveApprovalAndUpdate(ctx, req.ID, decision, now, rec, records.StatusAwaitingDecision); err != nil {
		if errors.Is(err, records.ErrConflict) {
			return nil, services.Wrap(services.ErrPrecondition, "approval", "decide",
				"request already decided", nil)
		}
		return nil, err
	}
	g.sink.Increment("approval.decided", map[string]string{"decision": string(decision)})
	g.logger.Info("decision applied",
		logging.String(logging.FieldRecordID, rec.ID),
		logging.String("decision", string(decision)))
	return rec, nil
}

// Sweep walks pending requests, sending at most one reminder past the
// deadline and expiring records past the hard limit. It is safe to run
// repeatedly; every action is idempotent.
func (g *Gate) Sweep(ctx context.Context) error {
	reqs, err := g.store.PendingApprovals(ctx)
	if err != nil {
		return err
	}

	now := g.now().UTC()
	for _, req := range reqs {
		rec, err := g.store.GetByID(ctx, req.RecordID)
		if errors.Is(err, records.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		// A record that left awaiting_decision through some other path leaves
		// its request behind; close it so it stops surfacing here.
		if rec.Status != records.StatusAwaitingDecision {
			if err := g.store.ResolveApproval(ctx, req.ID, records.DecisionExpired, now); err != nil && !errors.Is(err, records.ErrConflict) {
				return err
			}
			continue
		}

		if !now.Before(req.IssuedAt.Add(g.hardExpiry)) {
			if err := g.expire(ctx, req, rec, now); err != nil {
				return err
			}
			continue
		}

		if now.After(req.Deadline) && !req.ReminderSent {
			if err := g.notifier.NotifyReminder(ctx, rec, req.Deadline); err != nil {
				// Leave the flag unset; the next sweep retries the send.
				g.logger.Warn("reminder delivery failed",
					logging.String(logging.FieldRecordID, rec.ID),
					logging.Error(err))
				continue
			}
			if err := g.store.MarkReminderSent(ctx, req.ID); err != nil {
				return err
			}
			g.sink.Increment("approval.reminders", nil)
		}
	}
	return nil
}

func (g *Gate) expire(ctx context.Context, req *records.ApprovalRequest, rec *records.Record, now time.Time) error {
	if err := g.store.ResolveApproval(ctx, req.ID, records.DecisionExpired, now); err != nil {
		if errors.Is(err, records.ErrConflict) {
			return nil
		}
		return err
	}

	rec.Status = records.StatusExpired
	rec.StampStage(string(records.StatusExpired), now)
	if err := g.store.ConditionalUpdate(ctx, rec, records.StatusAwaitingDecision); err != nil && !errors.Is(err, records.ErrConflict) {
		return err
	}

	g.sink.Increment("approval.expired", nil)
	g.logger.Info("application expired",
		logging.String(logging.FieldRecordID, rec.ID))
	if err := g.notifier.NotifyExpired(ctx, rec); err != nil {
		g.logger.Warn("expiry notification failed", logging.Error(err))
	}
	return nil
}
