package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keydesk/keydesk/internal/server/middleware"
	"github.com/keydesk/keydesk/internal/service"
)

// LoanHandler exposes the loan endpoints: reservation, lifecycle updates,
// search, and the active-loan deletion guard.
type LoanHandler struct {
	loans *service.LoanService
}

func NewLoanHandler(loans *service.LoanService) *LoanHandler {
	return &LoanHandler{loans: loans}
}

// List returns one page of loans in fixed order (newest first).
// GET /api/v1/loans
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	loans, total, err := h.loans.List(r.Context(), page)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writePage(w, loans, len(loans), page, total)
}

// Search runs the filter grammar over loans.
// GET /api/v1/loans/search
func (h *LoanHandler) Search(w http.ResponseWriter, r *http.Request) {
	loans, total, err := h.loans.Search(r.Context(), r.URL.Query())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writePage(w, loans, len(loans), pageFrom(r), total)
}

// Get returns one loan by ID.
// GET /api/v1/loans/{loanID}
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	includeCards := queryBool(r, "includeCards")
	includeKeySystem := queryBool(r, "includeKeySystem")
	loan, err := h.loans.Details(r.Context(), chi.URLParam(r, "loanID"), includeCards, includeKeySystem)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, loan)
}

// Create reserves the requested keys and cards and creates the loan.
// POST /api/v1/loans
func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.LoanInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	loan, err := h.loans.Create(r.Context(), in, middleware.Actor(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusCreated, loan)
}

// Update rewrites a loan; lifecycle rules and the conflict re-check apply.
// PUT /api/v1/loans/{loanID}
func (h *LoanHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.LoanInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	loan, err := h.loans.Update(r.Context(), chi.URLParam(r, "loanID"), in, middleware.Actor(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, loan)
}

// Delete removes a loan unless it is active.
// DELETE /api/v1/loans/{loanID}
func (h *LoanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "loanID")
	if err := h.loans.Delete(r.Context(), id, middleware.Actor(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, map[string]string{"id": id})
}
