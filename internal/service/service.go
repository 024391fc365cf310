// Package service holds the business rules between the HTTP handlers and
// the store: input validation, the loan lifecycle, the reservation rules,
// bundle aggregation and the key-event state machine. Services return
// typed errors; the handler layer maps them to status codes.
package service

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/keydesk/keydesk/internal/query"
	"github.com/keydesk/keydesk/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4
		// rather than failing the mutation.
		return uuid.NewString()
	}
	return id.String()
}

func validateInput(in interface{}) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return validationf("field %s failed on rule %q", f.Field(), f.Tag())
		}
		return &ValidationError{Reason: err.Error()}
	}
	return nil
}

// mapStoreErr translates store sentinels into the API error taxonomy.
func mapStoreErr(err error, resource, id string) error {
	var conflict *store.ConflictError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Resource: resource, ID: id}
	case errors.Is(err, store.ErrDuplicateName):
		return &ConflictError{Reason: fmt.Sprintf("%s name already in use", resource)}
	case errors.As(err, &conflict):
		return &ConflictError{
			Reason:  "requested items are part of an open loan",
			KeyIDs:  conflict.KeyIDs,
			CardIDs: conflict.CardIDs,
		}
	default:
		return err
	}
}

// compileSearch parses the request parameters against a resource
// descriptor and compiles them. Filter grammar violations come back as
// ValidationError so handlers answer 400.
func compileSearch(params url.Values, res *query.Resource, ph query.PlaceholderFunc) (*query.Compiled, error) {
	spec, err := query.Parse(params, res)
	if err != nil {
		var inv *query.InvalidFilterError
		if errors.As(err, &inv) {
			return nil, &ValidationError{Reason: inv.Reason}
		}
		return nil, err
	}
	page := query.ParsePage(params.Get("page"), params.Get("limit"))
	c, err := query.Compile(spec, res, page, ph)
	if err != nil {
		var inv *query.InvalidFilterError
		if errors.As(err, &inv) {
			return nil, &ValidationError{Reason: inv.Reason}
		}
		return nil, err
	}
	return c, nil
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
		if seen[id] < 0 {
			return false
		}
	}
	return true
}
