package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/keydesk/keydesk/internal/model"
)

const eventColumns = "id, event_type, status, description, created_at, updated_at"

// CreateEvent inserts a key event and its membership.
func (s *Store) CreateEvent(ctx context.Context, e *model.KeyEvent) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO key_events (id, event_type, status, description, created_at, updated_at)
			VALUES (:id, :event_type, :status, :description, :created_at, :updated_at)`, e); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return insertMembers(ctx, tx, "key_event_keys", "event_id", "key_id", e.ID, e.KeyIDs)
	})
}

// GetEvent returns one event with its key set attached.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.KeyEvent, error) {
	var e model.KeyEvent
	err := s.db.GetContext(ctx, &e,
		s.rebind("SELECT "+eventColumns+" FROM key_events WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	events := []model.KeyEvent{e}
	if err := s.attachEventMembers(ctx, events); err != nil {
		return nil, err
	}
	return &events[0], nil
}

// UpdateEventStatus moves an event to a new status.
func (s *Store) UpdateEventStatus(ctx context.Context, id string, status model.EventStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE key_events SET status = ?, updated_at = ? WHERE id = ?"),
		status, now, id)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EventsForKey returns the events touching one key, newest first.
func (s *Store) EventsForKey(ctx context.Context, keyID string) ([]model.KeyEvent, error) {
	events := []model.KeyEvent{}
	err := s.db.SelectContext(ctx, &events, s.rebind(`
		SELECT `+eventColumns+` FROM key_events
		WHERE id IN (SELECT event_id FROM key_event_keys WHERE key_id = ?)
		ORDER BY created_at DESC, id DESC`), keyID)
	if err != nil {
		return nil, fmt.Errorf("load events for key: %w", err)
	}
	if err := s.attachEventMembers(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// EventsForKeys returns key ID -> events for a batch of keys, newest first
// within each key.
func (s *Store) EventsForKeys(ctx context.Context, keyIDs []string) (map[string][]model.KeyEvent, error) {
	out := make(map[string][]model.KeyEvent, len(keyIDs))
	if len(keyIDs) == 0 {
		return out, nil
	}

	q, args, err := sqlx.In(`
		SELECT ek.key_id, `+qualify("e", eventColumns)+`
		FROM key_event_keys ek
		JOIN key_events e ON e.id = ek.event_id
		WHERE ek.key_id IN (?)
		ORDER BY e.created_at DESC, e.id DESC`, keyIDs)
	if err != nil {
		return nil, fmt.Errorf("expand events query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("load events for keys: %w", err)
	}
	defer rows.Close()

	order := make(map[string][]string, len(keyIDs)) // key ID -> event IDs
	distinct := make(map[string]model.KeyEvent)
	for rows.Next() {
		var keyID string
		var e model.KeyEvent
		if err := rows.Scan(&keyID, &e.ID, &e.EventType, &e.Status, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		order[keyID] = append(order[keyID], e.ID)
		distinct[e.ID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	events := make([]model.KeyEvent, 0, len(distinct))
	for _, e := range distinct {
		events = append(events, e)
	}
	if err := s.attachEventMembers(ctx, events); err != nil {
		return nil, err
	}
	attached := make(map[string]model.KeyEvent, len(events))
	for _, e := range events {
		attached[e.ID] = e
	}
	for keyID, eventIDs := range order {
		for _, id := range eventIDs {
			out[keyID] = append(out[keyID], attached[id])
		}
	}
	return out, nil
}

func (s *Store) attachEventMembers(ctx context.Context, events []model.KeyEvent) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	keys, err := memberSets(ctx, s.db, "key_event_keys", "event_id", "key_id", ids)
	if err != nil {
		return err
	}
	for i := range events {
		events[i].KeyIDs = keys[events[i].ID]
	}
	return nil
}
