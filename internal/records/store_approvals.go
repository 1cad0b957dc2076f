package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const approvalColumns = "id, record_id, issued_at, deadline, reminder_sent, decision, decided_at"

// CreateApprovalRequest opens a pending request for a record. Only one
// pending request may exist per record at a time.
func (s *Store) CreateApprovalRequest(ctx context.Context, recordID string, issuedAt, deadline time.Time) (*ApprovalRequest, error) {
	pending, err := s.PendingApproval(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, fmt.Errorf("record %s already has a pending approval request", recordID)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO approval_requests (record_id, issued_at, deadline, reminder_sent) VALUES (?, ?, ?, 0)`,
		recordID,
		issuedAt.UTC().Format(time.RFC3339Nano),
		deadline.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert approval request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &ApprovalRequest{
		ID:       id,
		RecordID: recordID,
		IssuedAt: issuedAt.UTC(),
		Deadline: deadline.UTC(),
	}, nil
}

// PendingApproval returns the open request for a record, or nil when none exists.
func (s *Store) PendingApproval(ctx context.Context, recordID string) (*ApprovalRequest, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE record_id = ? AND decision IS NULL ORDER BY id DESC LIMIT 1`,
		recordID,
	)
	req, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pending approval: %w", err)
	}
	return req, nil
}

// PendingApprovals lists all open requests ordered by deadline.
func (s *Store) PendingApprovals(ctx context.Context) ([]*ApprovalRequest, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE decision IS NULL ORDER BY deadline`,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var reqs []*ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// ResolveApproval records a decision exactly once. A request that has already
// been decided returns ErrConflict and no mutation.
func (s *Store) ResolveApproval(ctx context.Context, requestID int64, decision Decision, decidedAt time.Time) error {
	return resolveApprovalOn(ctx, s.db, requestID, decision, decidedAt)
}

func resolveApprovalOn(ctx context.Context, db execer, requestID int64, decision Decision, decidedAt time.Time) error {
	res, err := db.ExecContext(
		ctx,
		`UPDATE approval_requests SET decision = ?, decided_at = ? WHERE id = ? AND decision IS NULL`,
		string(decision),
		decidedAt.UTC().Format(time.RFC3339Nano),
		requestID,
	)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

// ResolveApprovalAndUpdate applies a decision and its record transition in
// one transaction, so a request can never be consumed while the record stays
// awaiting_decision. Either write losing its race rolls both back with
// ErrConflict.
func (s *Store) ResolveApprovalAndUpdate(ctx context.Context, requestID int64, decision Decision, decidedAt time.Time, rec *Record, expected Status) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decision tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := resolveApprovalOn(ctx, tx, requestID, decision, decidedAt); err != nil {
		return err
	}
	affected, err := conditionalUpdateOn(ctx, tx, rec, expected)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit decision tx: %w", err)
	}
	return nil
}

// MarkReminderSent flags a pending request so the sweep sends at most one reminder.
func (s *Store) MarkReminderSent(ctx context.Context, requestID int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE approval_requests SET reminder_sent = 1 WHERE id = ?`,
		requestID,
	)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

func scanApproval(scanner interface{ Scan(dest ...any) error }) (*ApprovalRequest, error) {
	var (
		id           int64
		recordID     string
		issuedRaw    string
		deadlineRaw  string
		reminderInt  int64
		decisionRaw  sql.NullString
		decidedAtRaw sql.NullString
	)

	if err := scanner.Scan(&id, &recordID, &issuedRaw, &deadlineRaw, &reminderInt, &decisionRaw, &decidedAtRaw); err != nil {
		return nil, err
	}

	req := &ApprovalRequest{
		ID:           id,
		RecordID:     recordID,
		ReminderSent: reminderInt != 0,
	}
	if issued, err := parseTimeString(issuedRaw); err == nil {
		req.IssuedAt = issued
	}
	if deadline, err := parseTimeString(deadlineRaw); err == nil {
		req.Deadline = deadline
	}
	if decisionRaw.Valid && decisionRaw.String != "" {
		d := Decision(decisionRaw.String)
		req.Decision = &d
	}
	if decidedAtRaw.Valid {
		if t, err := parseTimeString(decidedAtRaw.String); err == nil {
			req.DecidedAt = &t
		}
	}
	return req, nil
}
