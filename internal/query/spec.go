// Package query turns raw, stringly-typed search parameters into a typed
// filter specification and compiles that specification into a single
// deterministic, parameterized SQL query. The parser and compiler are split
// so that validation errors surface before any SQL is built, and so the
// compiler can be tested against a fixed FilterSpec.
package query

import "fmt"

// CompareOp is a comparison operator carried by a predicate.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Predicate is one field comparison. The same field may appear in several
// predicates; all of them are combined with AND, which is how closed ranges
// (createdAt >= a AND createdAt <= b) are expressed.
type Predicate struct {
	Field string
	Op    CompareOp
	Value string
}

// PresencePredicate is a null-check on a nullable column, mapped from a
// tri-state request parameter (true / false / absent = no filter).
type PresencePredicate struct {
	Field   string
	Present bool
}

// OrGroup is the single free-text predicate: Text matched case-insensitively
// as a substring across Fields, combined with OR. At most one OrGroup is
// permitted per request.
type OrGroup struct {
	Text   string
	Fields []string
}

// CountRange bounds the cardinality of the resource's key set. Either bound
// may be nil. Disposed keys still count: the set tracks what was physically
// handed out.
type CountRange struct {
	Min *int
	Max *int
}

// FilterSpec is the parsed, typed representation of a search request.
type FilterSpec struct {
	Or       *OrGroup
	And      []Predicate
	Presence []PresencePredicate
	Derived  []Predicate // fields that require a join to another aggregate
	Count    *CountRange
}

// Empty reports whether the spec contains no predicates at all.
func (s *FilterSpec) Empty() bool {
	return s.Or == nil && len(s.And) == 0 && len(s.Presence) == 0 &&
		len(s.Derived) == 0 && s.Count == nil
}

// InvalidFilterError signals a malformed search request. The boundary layer
// maps it to a 400 response.
type InvalidFilterError struct {
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return "invalid search parameters: " + e.Reason
}

func invalidf(format string, args ...interface{}) error {
	return &InvalidFilterError{Reason: fmt.Sprintf(format, args...)}
}
