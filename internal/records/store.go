package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"snatcher/internal/config"
)

// Store manages record persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// execer is satisfied by both *sql.DB and *sql.Tx so write helpers can run
// standalone or inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open initializes or connects to the record database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "records.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location for diagnostics.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

const recordColumns = "id, external_key, status, title, company, description, location, source, " +
	"cosine_score, reasoning_score, combined_score, reasoning_explanation, draft_text, final_text, " +
	"decision_deadline, attempt_counts, stage_timestamps, needs_review, review_reason, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id             string
		externalKey    string
		statusStr      string
		title          sql.NullString
		company        sql.NullString
		description    sql.NullString
		location       sql.NullString
		source         sql.NullString
		cosine         sql.NullFloat64
		reasoning      sql.NullFloat64
		combined       sql.NullFloat64
		explanation    sql.NullString
		draftText      sql.NullString
		finalText      sql.NullString
		deadlineRaw    sql.NullString
		attemptsRaw    sql.NullString
		timestampsRaw  sql.NullString
		needsReviewInt sql.NullInt64
		reviewReason   sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&externalKey,
		&statusStr,
		&title,
		&company,
		&description,
		&location,
		&source,
		&cosine,
		&reasoning,
		&combined,
		&explanation,
		&draftText,
		&finalText,
		&deadlineRaw,
		&attemptsRaw,
		&timestampsRaw,
		&needsReviewInt,
		&reviewReason,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:                   id,
		ExternalKey:          externalKey,
		Status:               Status(statusStr),
		Title:                title.String,
		Company:              company.String,
		Description:          description.String,
		Location:             location.String,
		Source:               source.String,
		ReasoningExplanation: explanation.String,
		DraftText:            draftText.String,
		FinalText:            finalText.String,
		ReviewReason:         reviewReason.String,
	}
	if cosine.Valid {
		v := cosine.Float64
		rec.CosineScore = &v
	}
	if reasoning.Valid {
		v := reasoning.Float64
		rec.ReasoningScore = &v
	}
	if combined.Valid {
		v := combined.Float64
		rec.CombinedScore = &v
	}
	if needsReviewInt.Valid {
		rec.NeedsReview = needsReviewInt.Int64 != 0
	}
	if deadlineRaw.Valid {
		if t, err := parseTimeString(deadlineRaw.String); err == nil {
			rec.DecisionDeadline = &t
		}
	}
	if attemptsRaw.Valid && attemptsRaw.String != "" {
		if err := json.Unmarshal([]byte(attemptsRaw.String), &rec.AttemptCounts); err != nil {
			return nil, fmt.Errorf("decode attempt counts: %w", err)
		}
	}
	if timestampsRaw.Valid && timestampsRaw.String != "" {
		if err := json.Unmarshal([]byte(timestampsRaw.String), &rec.StageTimestamps); err != nil {
			return nil, fmt.Errorf("decode stage timestamps: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func marshalJSONMap(value any) (any, error) {
	switch v := value.(type) {
	case map[string]int:
		if len(v) == 0 {
			return nil, nil
		}
	case map[string]time.Time:
		if len(v) == 0 {
			return nil, nil
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
