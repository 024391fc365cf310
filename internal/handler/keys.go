package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keydesk/keydesk/internal/server/middleware"
	"github.com/keydesk/keydesk/internal/service"
)

// KeyHandler exposes the key catalogue.
type KeyHandler struct {
	keys *service.KeyService
}

func NewKeyHandler(keys *service.KeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// GET /api/v1/keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	keys, total, err := h.keys.List(r.Context(), page)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writePage(w, keys, len(keys), page, total)
}

// GET /api/v1/keys/search
func (h *KeyHandler) Search(w http.ResponseWriter, r *http.Request) {
	keys, total, err := h.keys.Search(r.Context(), r.URL.Query())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writePage(w, keys, len(keys), pageFrom(r), total)
}

// GET /api/v1/keys/{keyID}
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	k, err := h.keys.Get(r.Context(), chi.URLParam(r, "keyID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, k)
}

// Create accepts either a single key object or an array of them. The
// array form reports a per-unit outcome for every element and answers
// 207 when outcomes are mixed.
// POST /api/v1/keys
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	actor := middleware.Actor(r.Context())

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var inputs []service.KeyInput
		if err := decodeStrict(body, &inputs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		results, err := h.keys.CreateBatch(r.Context(), inputs, actor)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeContent(w, batchStatus(results), results)
		return
	}

	var in service.KeyInput
	if err := decodeStrict(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	k, err := h.keys.Create(r.Context(), in, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusCreated, k)
}

// PUT /api/v1/keys/{keyID}
func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.KeyInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	k, err := h.keys.Update(r.Context(), chi.URLParam(r, "keyID"), in, middleware.Actor(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, k)
}

func decodeStrict(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// batchStatus picks the response code for a batch: 201 when every unit
// succeeded, 400 when every unit failed, 207 for a mix.
func batchStatus(results []service.BatchKeyResult) int {
	succeeded, failed := 0, 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		} else {
			succeeded++
		}
	}
	switch {
	case failed == 0:
		return http.StatusCreated
	case succeeded == 0:
		return http.StatusBadRequest
	default:
		return http.StatusMultiStatus
	}
}
