package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures worth retrying on the next cycle
	// (network errors, timeouts, rate-limit responses).
	ErrTransient = errors.New("transient failure")

	// ErrPermanent marks source failures that need operator attention
	// (bad credentials, removed endpoints). Sources accumulating these
	// are deactivated once the failure threshold is crossed.
	ErrPermanent = errors.New("permanent source failure")

	ErrValidation = errors.New("validation error")

	ErrConfiguration = errors.New("configuration error")

	ErrNotFound = errors.New("not found")

	// ErrInvariant marks programming-contract violations such as
	// out-of-range sub-scores or out-of-order stage transitions. These
	// fail loudly and are never silently corrected.
	ErrInvariant = errors.New("invariant violation")

	// ErrConflict marks a lost compare-and-set race on a pipeline record.
	ErrConflict = errors.New("stage conflict")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether a fetch error should be retried with backoff.
// Unclassified errors are treated as transient so a flaky adapter does not
// permanently disable its source.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	return true
}

// IsPermanent reports whether an error marks a source as broken until an
// operator intervenes.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsInvariant reports whether an error is a programming-contract violation.
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant)
}

// ErrorCode maps an error to the short code recorded in the monitoring log.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermanent):
		return "permanent_source_error"
	case errors.Is(err, ErrInvariant):
		return "invariant_violation"
	case errors.Is(err, ErrConflict):
		return "stage_conflict"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transient_fetch_error"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
