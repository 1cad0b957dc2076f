package testsupport

import (
	"context"
	"testing"

	"snatcher/internal/config"
	"snatcher/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord creates a discovered record for tests using the provided store.
func NewRecord(t testing.TB, store *records.Store, externalKey string, posting records.Posting) *records.Record {
	t.Helper()

	rec, err := store.Create(context.Background(), externalKey, posting)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}
