package store

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateName is returned when a uniqueness constraint on a name or
// code would be violated.
var ErrDuplicateName = errors.New("name already in use")

// ConflictError reports which requested keys or cards are already part of
// another outstanding loan. The service layer translates it into the API
// conflict taxonomy.
type ConflictError struct {
	KeyIDs  []string
	CardIDs []string
}

func (e *ConflictError) Error() string {
	var parts []string
	if len(e.KeyIDs) > 0 {
		parts = append(parts, "keys already loaned: "+strings.Join(e.KeyIDs, ", "))
	}
	if len(e.CardIDs) > 0 {
		parts = append(parts, "cards already loaned: "+strings.Join(e.CardIDs, ", "))
	}
	return strings.Join(parts, "; ")
}
