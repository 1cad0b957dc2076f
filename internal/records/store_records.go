package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Create inserts a new record in the discovered state. A colliding external
// key returns ErrDuplicateKey; callers wanting idempotent ingestion should
// use CreateIfAbsent.
func (s *Store) Create(ctx context.Context, externalKey string, posting Posting) (*Record, error) {
	externalKey = strings.TrimSpace(externalKey)
	if externalKey == "" {
		return nil, errors.New("external key is required")
	}

	now := time.Now().UTC()
	rec := &Record{
		ID:          uuid.NewString(),
		ExternalKey: externalKey,
		Status:      StatusDiscovered,
		Title:       posting.Title,
		Company:     posting.Company,
		Description: posting.Description,
		Location:    posting.Location,
		Source:      posting.Source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec.StampStage(string(StatusDiscovered), now)

	stamps, err := marshalJSONMap(rec.StageTimestamps)
	if err != nil {
		return nil, fmt.Errorf("marshal stage timestamps: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO application_records (
            id, external_key, status, title, company, description, location, source,
            stage_timestamps, needs_review, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		rec.ID,
		rec.ExternalKey,
		rec.Status,
		nullableString(rec.Title),
		nullableString(rec.Company),
		nullableString(rec.Description),
		nullableString(rec.Location),
		nullableString(rec.Source),
		stamps,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}
	return rec, nil
}

// CreateIfAbsent returns the existing record for an external key or creates a
// new one. The boolean reports whether a record was created.
func (s *Store) CreateIfAbsent(ctx context.Context, externalKey string, posting Posting) (*Record, bool, error) {
	existing, err := s.GetByKey(ctx, externalKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	rec, err := s.Create(ctx, externalKey, posting)
	if errors.Is(err, ErrDuplicateKey) {
		// Lost a creation race; the other writer's record wins.
		existing, getErr := s.GetByKey(ctx, externalKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// GetByID fetches a record by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM application_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GetByKey fetches a record by its external deduplication key.
func (s *Store) GetByKey(ctx context.Context, externalKey string) (*Record, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+recordColumns+` FROM application_records WHERE external_key = ?`,
		strings.TrimSpace(externalKey),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record by key: %w", err)
	}
	return rec, nil
}

// ConditionalUpdate persists the record only if its stored status still
// matches expected. A mismatch returns ErrConflict and the caller re-reads.
func (s *Store) ConditionalUpdate(ctx context.Context, rec *Record, expected Status) error {
	affected, err := conditionalUpdateOn(ctx, s.db, rec, expected)
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := s.GetByID(ctx, rec.ID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

// conditionalUpdateOn runs the status-keyed UPDATE against a DB or an open
// transaction and reports the affected row count.
func conditionalUpdateOn(ctx context.Context, db execer, rec *Record, expected Status) (int64, error) {
	if rec == nil {
		return 0, errors.New("record is nil")
	}
	rec.UpdatedAt = time.Now().UTC()

	attempts, err := marshalJSONMap(rec.AttemptCounts)
	if err != nil {
		return 0, fmt.Errorf("marshal attempt counts: %w", err)
	}
	stamps, err := marshalJSONMap(rec.StageTimestamps)
	if err != nil {
		return 0, fmt.Errorf("marshal stage timestamps: %w", err)
	}

	res, err := db.ExecContext(
		ctx,
		`UPDATE application_records
         SET status = ?, title = ?, company = ?, description = ?, location = ?, source = ?,
             cosine_score = ?, reasoning_score = ?, combined_score = ?, reasoning_explanation = ?,
             draft_text = ?, final_text = ?, decision_deadline = ?, attempt_counts = ?,
             stage_timestamps = ?, needs_review = ?, review_reason = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		rec.Status,
		nullableString(rec.Title),
		nullableString(rec.Company),
		nullableString(rec.Description),
		nullableString(rec.Location),
		nullableString(rec.Source),
		nullableFloat(rec.CosineScore),
		nullableFloat(rec.ReasoningScore),
		nullableFloat(rec.CombinedScore),
		nullableString(rec.ReasoningExplanation),
		nullableString(rec.DraftText),
		nullableString(rec.FinalText),
		nullableTime(rec.DecisionDeadline),
		attempts,
		stamps,
		boolToInt(rec.NeedsReview),
		nullableString(rec.ReviewReason),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		rec.ID,
		expected,
	)
	if err != nil {
		return 0, fmt.Errorf("update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// ListByStatus returns records matching a status set ordered by creation
// time, or all records when no status is provided.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Record, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + recordColumns + ` FROM application_records`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// NextForStatuses returns the oldest record matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + recordColumns + ` FROM application_records WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// NextActionable returns the oldest record the pipeline can advance without
// operator input: anything mid-flight, plus scored records whose combined
// score clears the notify threshold. Parked records (below threshold) and
// records flagged for review are excluded.
func (s *Store) NextActionable(ctx context.Context, notifyThreshold float64) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM application_records
        WHERE needs_review = 0
          AND (
            status IN (?, ?, ?, ?)
            OR (status IN (?, ?) AND combined_score >= ?)
          )
        ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query,
		StatusDiscovered, StatusCosineScored, StatusReasoningPending, StatusDrafted,
		StatusReasoningScored, StatusReasoningSkipped, notifyThreshold,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListActionable returns up to limit advanceable records, oldest first, using
// the same selection rules as NextActionable. The daemon feeds its worker
// pool from this query.
func (s *Store) ListActionable(ctx context.Context, notifyThreshold float64, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 1
	}
	query := `SELECT ` + recordColumns + ` FROM application_records
        WHERE needs_review = 0
          AND (
            status IN (?, ?, ?, ?)
            OR (status IN (?, ?) AND combined_score >= ?)
          )
        ORDER BY created_at LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query,
		StatusDiscovered, StatusCosineScored, StatusReasoningPending, StatusDrafted,
		StatusReasoningScored, StatusReasoningSkipped, notifyThreshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list actionable: %w", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Stats returns record counts grouped by status plus the review-flag total.
func (s *Store) Stats(ctx context.Context) (StatsSummary, error) {
	summary := StatsSummary{ByStatus: make(map[Status]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM application_records GROUP BY status`)
	if err != nil {
		return summary, fmt.Errorf("record stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return summary, err
		}
		summary.ByStatus[status] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM application_records WHERE needs_review = 1`)
	if err := row.Scan(&summary.Review); err != nil {
		return summary, fmt.Errorf("review count: %w", err)
	}
	return summary, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
