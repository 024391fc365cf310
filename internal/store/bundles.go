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

const bundleColumns = "id, name, description, created_at, updated_at"

// CreateBundle inserts a bundle and its membership. Bundle names are
// unique; a clash returns ErrDuplicateName.
func (s *Store) CreateBundle(ctx context.Context, b *model.KeyBundle) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := bundleNameFree(ctx, tx, b.Name, ""); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO key_bundles (id, name, description, created_at, updated_at)
			VALUES (:id, :name, :description, :created_at, :updated_at)`, b); err != nil {
			return fmt.Errorf("insert bundle: %w", err)
		}
		return insertMembers(ctx, tx, "key_bundle_keys", "bundle_id", "key_id", b.ID, b.KeyIDs)
	})
}

// UpdateBundle rewrites a bundle and replaces its membership.
func (s *Store) UpdateBundle(ctx context.Context, b *model.KeyBundle) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := bundleNameFree(ctx, tx, b.Name, b.ID); err != nil {
			return err
		}
		res, err := tx.NamedExecContext(ctx, `
			UPDATE key_bundles SET name = :name, description = :description, updated_at = :updated_at
			WHERE id = :id`, b)
		if err != nil {
			return fmt.Errorf("update bundle: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return replaceMembers(ctx, tx, "key_bundle_keys", "bundle_id", "key_id", b.ID, b.KeyIDs)
	})
}

// DeleteBundle removes a bundle and its membership. Bundles are independent
// of loan state, so no guard applies.
func (s *Store) DeleteBundle(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind("DELETE FROM key_bundle_keys WHERE bundle_id = ?"), id); err != nil {
			return fmt.Errorf("delete bundle members: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM key_bundles WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("delete bundle: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetBundle returns one bundle with its member key IDs attached.
func (s *Store) GetBundle(ctx context.Context, id string) (*model.KeyBundle, error) {
	var b model.KeyBundle
	err := s.db.GetContext(ctx, &b,
		s.rebind("SELECT "+bundleColumns+" FROM key_bundles WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	bundles := []model.KeyBundle{b}
	if err := s.attachBundleMembers(ctx, bundles); err != nil {
		return nil, err
	}
	return &bundles[0], nil
}

// ListBundles returns one page in fixed order plus the total count.
func (s *Store) ListBundles(ctx context.Context, limit, offset int) ([]model.KeyBundle, int, error) {
	bundles := make([]model.KeyBundle, 0, limit)
	err := s.db.SelectContext(ctx, &bundles, s.rebind(
		"SELECT "+bundleColumns+" FROM key_bundles ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bundles: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM key_bundles"); err != nil {
		return nil, 0, fmt.Errorf("count bundles: %w", err)
	}
	if err := s.attachBundleMembers(ctx, bundles); err != nil {
		return nil, 0, err
	}
	return bundles, total, nil
}

// SearchBundles executes a compiled filter against the bundle table.
func (s *Store) SearchBundles(ctx context.Context, c *query.Compiled) ([]model.KeyBundle, int, error) {
	bundles := make([]model.KeyBundle, 0, c.Limit)
	if err := s.db.SelectContext(ctx, &bundles, c.SelectSQL(bundleColumns, "key_bundles"), c.Args...); err != nil {
		return nil, 0, fmt.Errorf("search bundles: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, c.CountSQL("key_bundles"), c.Args...); err != nil {
		return nil, 0, fmt.Errorf("count bundles: %w", err)
	}
	if err := s.attachBundleMembers(ctx, bundles); err != nil {
		return nil, 0, err
	}
	return bundles, total, nil
}

func (s *Store) attachBundleMembers(ctx context.Context, bundles []model.KeyBundle) error {
	if len(bundles) == 0 {
		return nil
	}
	ids := make([]string, len(bundles))
	for i := range bundles {
		ids[i] = bundles[i].ID
	}
	keys, err := memberSets(ctx, s.db, "key_bundle_keys", "bundle_id", "key_id", ids)
	if err != nil {
		return err
	}
	for i := range bundles {
		bundles[i].KeyIDs = keys[bundles[i].ID]
	}
	return nil
}

func bundleNameFree(ctx context.Context, tx *sqlx.Tx, name, excludeID string) error {
	q := "SELECT id FROM key_bundles WHERE name = ?"
	args := []interface{}{name}
	if excludeID != "" {
		q += " AND id <> ?"
		args = append(args, excludeID)
	}
	var id string
	err := tx.GetContext(ctx, &id, tx.Rebind(q), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check bundle name: %w", err)
	}
	return ErrDuplicateName
}
