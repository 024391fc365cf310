package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keydesk/keydesk/internal/server/middleware"
	"github.com/keydesk/keydesk/internal/service"
)

// BundleHandler exposes bundle CRUD and the aggregated per-key loan
// status view.
type BundleHandler struct {
	bundles *service.BundleService
}

func NewBundleHandler(bundles *service.BundleService) *BundleHandler {
	return &BundleHandler{bundles: bundles}
}

// GET /api/v1/bundles
func (h *BundleHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	bundles, total, err := h.bundles.List(r.Context(), page)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writePage(w, bundles, len(bundles), page, total)
}

// GET /api/v1/bundles/search
func (h *BundleHandler) Search(w http.ResponseWriter, r *http.Request) {
	bundles, total, err := h.bundles.Search(r.Context(), r.URL.Query())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writePage(w, bundles, len(bundles), pageFrom(r), total)
}

// GET /api/v1/bundles/{bundleID}
func (h *BundleHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.bundles.Get(r.Context(), chi.URLParam(r, "bundleID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, b)
}

// POST /api/v1/bundles
func (h *BundleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.BundleInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	b, err := h.bundles.Create(r.Context(), in, middleware.Actor(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusCreated, b)
}

// PUT /api/v1/bundles/{bundleID}
func (h *BundleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.BundleInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	b, err := h.bundles.Update(r.Context(), chi.URLParam(r, "bundleID"), in, middleware.Actor(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, b)
}

// DELETE /api/v1/bundles/{bundleID}
func (h *BundleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "bundleID")
	if err := h.bundles.Delete(r.Context(), id, middleware.Actor(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, map[string]string{"id": id})
}

// KeysWithLoanStatus returns every member key with the loan currently
// holding it, plus optional loan and event history.
// GET /api/v1/bundles/{bundleID}/keys-with-loan-status
func (h *BundleHandler) KeysWithLoanStatus(w http.ResponseWriter, r *http.Request) {
	details, err := h.bundles.Details(r.Context(), chi.URLParam(r, "bundleID"),
		queryBool(r, "includeLoans"), queryBool(r, "includeEvents"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, details)
}
