package records

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS application_records (
        id TEXT PRIMARY KEY,
        external_key TEXT NOT NULL UNIQUE,
        status TEXT NOT NULL,
        title TEXT,
        company TEXT,
        description TEXT,
        location TEXT,
        source TEXT,
        cosine_score REAL,
        reasoning_score REAL,
        combined_score REAL,
        reasoning_explanation TEXT,
        draft_text TEXT,
        final_text TEXT,
        decision_deadline TEXT,
        attempt_counts TEXT,
        stage_timestamps TEXT,
        needs_review INTEGER NOT NULL DEFAULT 0,
        review_reason TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_records_status ON application_records (status)`,
	`CREATE INDEX IF NOT EXISTS idx_records_combined ON application_records (combined_score)`,
	`CREATE TABLE IF NOT EXISTS approval_requests (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        record_id TEXT NOT NULL REFERENCES application_records (id),
        issued_at TEXT NOT NULL,
        deadline TEXT NOT NULL,
        reminder_sent INTEGER NOT NULL DEFAULT 0,
        decision TEXT,
        decided_at TEXT
    )`,
	`CREATE INDEX IF NOT EXISTS idx_approvals_record ON approval_requests (record_id)`,
}

func (s *Store) applyMigrations(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}
