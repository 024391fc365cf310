package model

import "time"

// EventType names a side process run against a set of keys.
type EventType string

const (
	EventTypeFlexKey EventType = "FLEX_KEY"
	EventTypeReorder EventType = "REORDER"
	EventTypeLoss    EventType = "LOSS"
)

// ValidEventType reports whether t is a known event type.
func ValidEventType(t EventType) bool {
	return t == EventTypeFlexKey || t == EventTypeReorder || t == EventTypeLoss
}

// EventStatus tracks the progress of a key event. Events are not gated by
// the reservation invariant; they run regardless of loan state.
type EventStatus string

const (
	EventStatusOrdered  EventStatus = "ORDERED"
	EventStatusReceived EventStatus = "RECEIVED"
	EventStatusDone     EventStatus = "DONE"
)

// CanTransition reports whether moving from s to next is a legal step.
// The only legal path is ORDERED -> RECEIVED -> DONE.
func (s EventStatus) CanTransition(next EventStatus) bool {
	switch s {
	case EventStatusOrdered:
		return next == EventStatusReceived
	case EventStatusReceived:
		return next == EventStatusDone
	default:
		return false
	}
}

// KeyEvent records a side process (flex-key creation, re-order, loss) on a
// set of keys.
type KeyEvent struct {
	ID          string      `db:"id" json:"id"`
	KeyIDs      []string    `db:"-" json:"keyIds"`
	EventType   EventType   `db:"event_type" json:"eventType"`
	Status      EventStatus `db:"status" json:"status"`
	Description string      `db:"description" json:"description"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}
