package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/keydesk/keydesk/internal/audit"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/store"
)

// EventInput is the write payload for starting a key event.
type EventInput struct {
	KeyIDs      []string        `json:"keyIds" validate:"required,min=1,dive,required"`
	EventType   model.EventType `json:"eventType" validate:"required"`
	Description string          `json:"description"`
}

// EventService tracks side processes (flex keys, re-orders, losses) on
// sets of keys. Events are independent of loan state.
type EventService struct {
	store *store.Store
	audit *audit.Recorder
	log   *slog.Logger
}

func NewEventService(st *store.Store, rec *audit.Recorder, log *slog.Logger) *EventService {
	return &EventService{store: st, audit: rec, log: log}
}

// Create starts a new event in status ORDERED.
func (s *EventService) Create(ctx context.Context, in EventInput, actor string) (*model.KeyEvent, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !model.ValidEventType(in.EventType) {
		return nil, validationf("unknown event type %q", in.EventType)
	}
	if dup := duplicateID(in.KeyIDs); dup != "" {
		return nil, validationf("duplicate key id %s", dup)
	}
	missing, err := s.store.MissingKeys(ctx, in.KeyIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, validationf("unknown key ids: %s", strings.Join(missing, ", "))
	}

	now := time.Now().UTC()
	e := &model.KeyEvent{
		ID:          newID(),
		KeyIDs:      in.KeyIDs,
		EventType:   in.EventType,
		Status:      model.EventStatusOrdered,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, mapStoreErr(err, "event", e.ID)
	}
	s.audit.Record(ctx, actor, "event.create", "event", e.ID, string(e.EventType))
	return e, nil
}

func (s *EventService) Get(ctx context.Context, id string) (*model.KeyEvent, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "event", id)
	}
	return e, nil
}

// ForKey returns all events touching one key, newest first.
func (s *EventService) ForKey(ctx context.Context, keyID string) ([]model.KeyEvent, error) {
	return s.store.EventsForKey(ctx, keyID)
}

// Advance moves an event along its status path. The only legal path is
// ORDERED -> RECEIVED -> DONE; everything else is rejected.
func (s *EventService) Advance(ctx context.Context, id string, next model.EventStatus, actor string) (*model.KeyEvent, error) {
	switch next {
	case model.EventStatusOrdered, model.EventStatusReceived, model.EventStatusDone:
	default:
		return nil, validationf("unknown event status %q", next)
	}

	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "event", id)
	}
	if !e.Status.CanTransition(next) {
		return nil, validationf("illegal transition %s -> %s", e.Status, next)
	}

	now := time.Now().UTC()
	if err := s.store.UpdateEventStatus(ctx, id, next, now); err != nil {
		return nil, mapStoreErr(err, "event", id)
	}
	e.Status = next
	e.UpdatedAt = now

	s.audit.Record(ctx, actor, "event.status", "event", id, string(next))
	return e, nil
}
