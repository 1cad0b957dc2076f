package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks network, store, and timeout failures that are safe to retry.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks malformed input or responses that retries cannot fix.
	ErrPermanent = errors.New("permanent failure")
	// ErrResourceUnavailable marks deep-scoring failures caused by the compute
	// host never reaching readiness.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrPrecondition marks an illegal state transition attempt. No mutation occurred.
	ErrPrecondition = errors.New("precondition violation")
	// ErrConfiguration marks missing or invalid adapter configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error that carries stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above; a nil marker defaults to ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether err should be retried. Unclassified errors are
// treated as transient so flaky collaborators get the benefit of the doubt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrPrecondition) ||
		errors.Is(err, ErrConfiguration) || errors.Is(err, ErrResourceUnavailable) {
		return false
	}
	return true
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
