package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// memberSets loads the membership rows of a join table for a set of owner
// IDs, returning ownerID -> sorted member IDs. Sorting keeps reads of an
// order-insignificant set deterministic.
func memberSets(ctx context.Context, ext sqlx.ExtContext, table, ownerCol, memberCol string, ownerIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}

	q, args, err := sqlx.In(
		fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (?) ORDER BY %s, %s",
			ownerCol, memberCol, table, ownerCol, ownerCol, memberCol),
		ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("expand member query: %w", err)
	}

	rows, err := ext.QueryxContext(ctx, ext.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("load members of %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner, member string
		if err := rows.Scan(&owner, &member); err != nil {
			return nil, fmt.Errorf("scan members of %s: %w", table, err)
		}
		out[owner] = append(out[owner], member)
	}
	return out, rows.Err()
}

// replaceMembers rewrites the membership rows for one owner inside a
// transaction.
func replaceMembers(ctx context.Context, tx *sqlx.Tx, table, ownerCol, memberCol, ownerID string, memberIDs []string) error {
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, ownerCol)), ownerID); err != nil {
		return fmt.Errorf("clear members of %s: %w", table, err)
	}
	return insertMembers(ctx, tx, table, ownerCol, memberCol, ownerID, memberIDs)
}

// qualify prefixes each column in a comma-separated list with a table alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

func insertMembers(ctx context.Context, tx *sqlx.Tx, table, ownerCol, memberCol, ownerID string, memberIDs []string) error {
	stmt := tx.Rebind(fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", table, ownerCol, memberCol))
	for _, m := range memberIDs {
		if _, err := tx.ExecContext(ctx, stmt, ownerID, m); err != nil {
			return fmt.Errorf("insert member of %s: %w", table, err)
		}
	}
	return nil
}
