package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/query"
)

const keyColumns = "id, name, sequence_number, key_type, rental_object_code, key_system_id, disposed, created_at, updated_at"

// CreateKey inserts a new key into the catalogue.
func (s *Store) CreateKey(ctx context.Context, k *model.Key) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO keys (id, name, sequence_number, key_type, rental_object_code, key_system_id, disposed, created_at, updated_at)
		VALUES (:id, :name, :sequence_number, :key_type, :rental_object_code, :key_system_id, :disposed, :created_at, :updated_at)`, k)
	if err != nil {
		return fmt.Errorf("insert key: %w", err)
	}
	return nil
}

// GetKey returns one key by ID.
func (s *Store) GetKey(ctx context.Context, id string) (*model.Key, error) {
	var k model.Key
	err := s.db.GetContext(ctx, &k,
		s.rebind("SELECT "+keyColumns+" FROM keys WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	return &k, nil
}

// UpdateKey rewrites a key's mutable metadata. Identity is immutable.
func (s *Store) UpdateKey(ctx context.Context, k *model.Key) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE keys SET name = :name, sequence_number = :sequence_number,
			key_type = :key_type, rental_object_code = :rental_object_code,
			key_system_id = :key_system_id, disposed = :disposed, updated_at = :updated_at
		WHERE id = :id`, k)
	if err != nil {
		return fmt.Errorf("update key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListKeys returns one page of the catalogue in fixed order, plus the total
// count.
func (s *Store) ListKeys(ctx context.Context, limit, offset int) ([]model.Key, int, error) {
	keys := make([]model.Key, 0, limit)
	err := s.db.SelectContext(ctx, &keys, s.rebind(
		"SELECT "+keyColumns+" FROM keys ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list keys: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM keys"); err != nil {
		return nil, 0, fmt.Errorf("count keys: %w", err)
	}
	return keys, total, nil
}

// SearchKeys executes a compiled filter against the key catalogue.
func (s *Store) SearchKeys(ctx context.Context, c *query.Compiled) ([]model.Key, int, error) {
	keys := make([]model.Key, 0, c.Limit)
	if err := s.db.SelectContext(ctx, &keys, c.SelectSQL(keyColumns, "keys"), c.Args...); err != nil {
		return nil, 0, fmt.Errorf("search keys: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, c.CountSQL("keys"), c.Args...); err != nil {
		return nil, 0, fmt.Errorf("count keys: %w", err)
	}
	return keys, total, nil
}

// MissingKeys returns which of the given IDs do not exist in the catalogue.
func (s *Store) MissingKeys(ctx context.Context, ids []string) ([]string, error) {
	return s.missingIDs(ctx, "keys", ids)
}

// KeysByIDs loads the given keys in ID order.
func (s *Store) KeysByIDs(ctx context.Context, ids []string) ([]model.Key, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In("SELECT "+keyColumns+" FROM keys WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("expand keys query: %w", err)
	}
	var keys []model.Key
	if err := s.db.SelectContext(ctx, &keys, s.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}
	return keys, nil
}

// CreateCard inserts a new access card.
func (s *Store) CreateCard(ctx context.Context, c *model.Card) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO cards (id, label, disposed, created_at, updated_at)
		VALUES (:id, :label, :disposed, :created_at, :updated_at)`, c)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

// GetCard returns one card by ID.
func (s *Store) GetCard(ctx context.Context, id string) (*model.Card, error) {
	var c model.Card
	err := s.db.GetContext(ctx, &c,
		s.rebind("SELECT id, label, disposed, created_at, updated_at FROM cards WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return &c, nil
}

// CardsByIDs loads the given cards in ID order.
func (s *Store) CardsByIDs(ctx context.Context, ids []string) ([]model.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(
		"SELECT id, label, disposed, created_at, updated_at FROM cards WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("expand cards query: %w", err)
	}
	var cards []model.Card
	if err := s.db.SelectContext(ctx, &cards, s.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	return cards, nil
}

// MissingCards returns which of the given IDs do not exist.
func (s *Store) MissingCards(ctx context.Context, ids []string) ([]string, error) {
	return s.missingIDs(ctx, "cards", ids)
}

func (s *Store) missingIDs(ctx context.Context, table string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In("SELECT id FROM "+table+" WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("expand id query: %w", err)
	}
	var found []string
	if err := s.db.SelectContext(ctx, &found, s.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("check %s ids: %w", table, err)
	}
	present := make(map[string]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
