package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/query"
	"github.com/keydesk/keydesk/internal/service"
)

// writeJSON serializes v and writes it with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeContent wraps v in the single-resource envelope.
func writeContent(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, model.ContentResponse{Content: v})
}

// writePage wraps a list in the paginated envelope.
func writePage(w http.ResponseWriter, items interface{}, count int, page query.Page, total int) {
	writeJSON(w, http.StatusOK, model.PagedResponse{
		Content: items,
		Meta: model.PageMeta{
			Page:  page.Page,
			Limit: page.Limit,
			Total: total,
			Count: count,
		},
	})
}

// writeError writes the structured error envelope. The optional ctx map
// provides additional context fields.
func writeError(w http.ResponseWriter, code int, message string, ctx ...map[string]interface{}) {
	var ctxMap map[string]interface{}
	if len(ctx) > 0 {
		ctxMap = ctx[0]
	}
	writeJSON(w, code, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:    code,
			Message: message,
			Context: ctxMap,
		},
	})
}

// writeServiceError maps the service error taxonomy onto status codes.
// Anything untyped is a 500 with a generic message so that internal
// details never leak into responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validation *service.ValidationError
		notFound   *service.NotFoundError
		conflict   *service.ConflictError
		active     *service.ActiveLoanError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Reason)
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		ctx := map[string]interface{}{}
		if len(conflict.KeyIDs) > 0 {
			ctx["conflictingKeyIds"] = conflict.KeyIDs
		}
		if len(conflict.CardIDs) > 0 {
			ctx["conflictingCardIds"] = conflict.CardIDs
		}
		if len(ctx) == 0 {
			ctx = nil
		}
		writeError(w, http.StatusConflict, conflict.Reason, ctx)
	case errors.As(err, &active):
		writeError(w, http.StatusConflict, active.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// readJSON decodes the request body into v. Unknown fields are rejected so
// misspelled payload keys surface as 400s instead of silently dropped
// data.
func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pageFrom reads the page and limit parameters with defaults and caps
// applied.
func pageFrom(r *http.Request) query.Page {
	q := r.URL.Query()
	return query.ParsePage(q.Get("page"), q.Get("limit"))
}

// queryBool reads a boolean query parameter; missing means false.
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}
