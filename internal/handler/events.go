package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/server/middleware"
	"github.com/keydesk/keydesk/internal/service"
)

// EventHandler exposes key events and their status transitions.
type EventHandler struct {
	events *service.EventService
}

func NewEventHandler(events *service.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// POST /api/v1/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.EventInput
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	e, err := h.events.Create(r.Context(), in, middleware.Actor(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusCreated, e)
}

// GET /api/v1/events/{eventID}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.events.Get(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, e)
}

// ListForKey returns all events touching one key.
// GET /api/v1/events?keyId=...
func (h *EventHandler) ListForKey(w http.ResponseWriter, r *http.Request) {
	keyID := r.URL.Query().Get("keyId")
	if keyID == "" {
		writeError(w, http.StatusBadRequest, "keyId parameter is required")
		return
	}
	events, err := h.events.ForKey(r.Context(), keyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, events)
}

// AdvanceStatus moves an event along ORDERED -> RECEIVED -> DONE.
// PUT /api/v1/events/{eventID}/status
func (h *EventHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status model.EventStatus `json:"status"`
	}
	if err := readJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	e, err := h.events.Advance(r.Context(), chi.URLParam(r, "eventID"), in.Status, middleware.Actor(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeContent(w, http.StatusOK, e)
}
