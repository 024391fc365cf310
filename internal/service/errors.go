package service

import (
	"fmt"
	"strings"
)

// ValidationError means the request was malformed or violated a
// domain rule before any persistence happened.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing resource by type and id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ConflictError reports a reservation conflict: one or more of the
// requested keys or cards are already held by an open loan, or a
// unique constraint was violated.
type ConflictError struct {
	Reason  string
	KeyIDs  []string
	CardIDs []string
}

func (e *ConflictError) Error() string {
	if len(e.KeyIDs) == 0 && len(e.CardIDs) == 0 {
		return e.Reason
	}
	parts := make([]string, 0, 2)
	if len(e.KeyIDs) > 0 {
		parts = append(parts, "keys "+strings.Join(e.KeyIDs, ", "))
	}
	if len(e.CardIDs) > 0 {
		parts = append(parts, "cards "+strings.Join(e.CardIDs, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(parts, "; "))
}

// ActiveLoanError blocks destructive operations on resources that an
// open loan still references.
type ActiveLoanError struct {
	LoanID string
}

func (e *ActiveLoanError) Error() string {
	return fmt.Sprintf("resource is referenced by active loan %s", e.LoanID)
}
