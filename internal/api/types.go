// Package api defines the transport DTOs shared by the daemon's HTTP
// surface and the CLI, plus the service layer that produces them.
package api

import (
	"snatcher/internal/lease"
	"snatcher/internal/metrics"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// RecordView describes an application record in a transport-friendly format.
type RecordView struct {
	ID                   string            `json:"id"`
	ExternalKey          string            `json:"externalKey"`
	Status               string            `json:"status"`
	Title                string            `json:"title,omitempty"`
	Company              string            `json:"company,omitempty"`
	Location             string            `json:"location,omitempty"`
	Source               string            `json:"source,omitempty"`
	CosineScore          *float64          `json:"cosineScore,omitempty"`
	ReasoningScore       *float64          `json:"reasoningScore,omitempty"`
	CombinedScore        *float64          `json:"combinedScore,omitempty"`
	ReasoningExplanation string            `json:"reasoningExplanation,omitempty"`
	DraftText            string            `json:"draftText,omitempty"`
	FinalText            string            `json:"finalText,omitempty"`
	DecisionDeadline     string            `json:"decisionDeadline,omitempty"`
	NeedsReview          bool              `json:"needsReview"`
	ReviewReason         string            `json:"reviewReason,omitempty"`
	StageTimestamps      map[string]string `json:"stageTimestamps,omitempty"`
	CreatedAt            string            `json:"createdAt,omitempty"`
	UpdatedAt            string            `json:"updatedAt,omitempty"`
}

// SubmitRequest registers a posting for evaluation. ExternalKey is required;
// when the posting fields are empty the pipeline ingests them from the key,
// which must then be a fetchable URL.
type SubmitRequest struct {
	ExternalKey string `json:"externalKey"`
	Title       string `json:"title,omitempty"`
	Company     string `json:"company,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	Source      string `json:"source,omitempty"`
}

// SubmitResponse reports the record backing a submission and whether it was
// newly created.
type SubmitResponse struct {
	Record  RecordView `json:"record"`
	Created bool       `json:"created"`
}

// DecideRequest carries a reviewer verdict.
type DecideRequest struct {
	Decision  string `json:"decision"`
	FinalText string `json:"finalText,omitempty"`
}

// RecordResponse wraps a single record.
type RecordResponse struct {
	Record RecordView `json:"record"`
}

// RecordListResponse wraps a collection of records.
type RecordListResponse struct {
	Records []RecordView `json:"records"`
}

// StatsResponse provides record counts keyed by status string.
type StatsResponse struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
	Review   int            `json:"review"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool             `json:"running"`
	PID          int              `json:"pid"`
	DBPath       string           `json:"dbPath"`
	LockFilePath string           `json:"lockFilePath"`
	Stats        StatsResponse    `json:"stats"`
	Lease        lease.Snapshot   `json:"lease"`
	Metrics      metrics.Snapshot `json:"metrics"`
}
