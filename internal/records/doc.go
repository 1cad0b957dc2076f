// Package records persists application records and approval requests in
// SQLite and owns the status vocabulary of the pipeline.
//
// All mutations that move a record between stages go through conditional
// updates keyed on the expected current status, so two racing advances
// cannot both apply conflicting transitions: the loser gets ErrConflict and
// re-reads. External-key uniqueness is enforced by the schema, which is what
// makes ingestion idempotent.
package records
