package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/query"
)

const loanColumns = "id, loan_type, contact_id, secondary_contact_id, description, picked_up_at, returned_at, available_from, created_at, created_by, updated_at, updated_by"

// CreateLoan reserves the loan's key and card sets and inserts the record
// as one atomic unit. If any requested key or card is part of another loan
// with returned_at still null, nothing is written and a ConflictError
// reports the clashing identifiers.
func (s *Store) CreateLoan(ctx context.Context, loan *model.KeyLoan) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.lockMembers(ctx, tx, loan.KeyIDs, loan.CardIDs); err != nil {
			return err
		}
		if err := s.checkConflicts(ctx, tx, loan.KeyIDs, loan.CardIDs, ""); err != nil {
			return err
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO key_loans (id, loan_type, contact_id, secondary_contact_id, description,
				picked_up_at, returned_at, available_from, created_at, created_by, updated_at, updated_by)
			VALUES (:id, :loan_type, :contact_id, :secondary_contact_id, :description,
				:picked_up_at, :returned_at, :available_from, :created_at, :created_by, :updated_at, :updated_by)`,
			loan); err != nil {
			return fmt.Errorf("insert loan: %w", err)
		}
		if err := insertMembers(ctx, tx, "key_loan_keys", "loan_id", "key_id", loan.ID, loan.KeyIDs); err != nil {
			return err
		}
		return insertMembers(ctx, tx, "key_loan_cards", "loan_id", "card_id", loan.ID, loan.CardIDs)
	})
}

// UpdateLoan rewrites a loan record and its member sets. When
// checkConflicts is set (the key or card set changed), the same conflict
// check as CreateLoan runs inside the transaction, excluding the loan
// itself.
func (s *Store) UpdateLoan(ctx context.Context, loan *model.KeyLoan, checkConflicts bool) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if checkConflicts {
			if err := s.lockMembers(ctx, tx, loan.KeyIDs, loan.CardIDs); err != nil {
				return err
			}
			if err := s.checkConflicts(ctx, tx, loan.KeyIDs, loan.CardIDs, loan.ID); err != nil {
				return err
			}
		}

		res, err := tx.NamedExecContext(ctx, `
			UPDATE key_loans SET loan_type = :loan_type, contact_id = :contact_id,
				secondary_contact_id = :secondary_contact_id, description = :description,
				picked_up_at = :picked_up_at, returned_at = :returned_at,
				available_from = :available_from, updated_at = :updated_at, updated_by = :updated_by
			WHERE id = :id`, loan)
		if err != nil {
			return fmt.Errorf("update loan: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		if err := replaceMembers(ctx, tx, "key_loan_keys", "loan_id", "key_id", loan.ID, loan.KeyIDs); err != nil {
			return err
		}
		return replaceMembers(ctx, tx, "key_loan_cards", "loan_id", "card_id", loan.ID, loan.CardIDs)
	})
}

// DeleteLoan removes a loan and its member rows. The active-loan guard is
// the service layer's responsibility; the store only deletes.
func (s *Store) DeleteLoan(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"key_loan_keys", "key_loan_cards"} {
			if _, err := tx.ExecContext(ctx,
				tx.Rebind("DELETE FROM "+table+" WHERE loan_id = ?"), id); err != nil {
				return fmt.Errorf("delete loan members: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM key_loans WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("delete loan: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetLoan returns one loan with its key and card sets attached.
func (s *Store) GetLoan(ctx context.Context, id string) (*model.KeyLoan, error) {
	var loan model.KeyLoan
	err := s.db.GetContext(ctx, &loan,
		s.rebind("SELECT "+loanColumns+" FROM key_loans WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	loans := []model.KeyLoan{loan}
	if err := s.attachLoanMembers(ctx, loans); err != nil {
		return nil, err
	}
	return &loans[0], nil
}

// ListLoans returns one page of loans in fixed order (newest first, ties
// broken by ID), plus the total count.
func (s *Store) ListLoans(ctx context.Context, limit, offset int) ([]model.KeyLoan, int, error) {
	loans := make([]model.KeyLoan, 0, limit)
	err := s.db.SelectContext(ctx, &loans, s.rebind(
		"SELECT "+loanColumns+" FROM key_loans ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list loans: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM key_loans"); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}
	if err := s.attachLoanMembers(ctx, loans); err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

// SearchLoans executes a compiled filter and returns the page rows with
// member sets attached, plus the total matching count.
func (s *Store) SearchLoans(ctx context.Context, c *query.Compiled) ([]model.KeyLoan, int, error) {
	loans := make([]model.KeyLoan, 0, c.Limit)
	if err := s.db.SelectContext(ctx, &loans, c.SelectSQL(loanColumns, "key_loans"), c.Args...); err != nil {
		return nil, 0, fmt.Errorf("search loans: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, c.CountSQL("key_loans"), c.Args...); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}
	if err := s.attachLoanMembers(ctx, loans); err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

// OutstandingLoansForKeys returns, for each of the given keys, the loan
// (if any) that still holds it: returned_at is null. The reservation
// invariant guarantees at most one such loan per key.
func (s *Store) OutstandingLoansForKeys(ctx context.Context, keyIDs []string) (map[string]*model.KeyLoan, error) {
	out := make(map[string]*model.KeyLoan, len(keyIDs))
	if len(keyIDs) == 0 {
		return out, nil
	}

	q, args, err := sqlx.In(`
		SELECT lk.key_id, lk.loan_id
		FROM key_loan_keys lk
		JOIN key_loans l ON l.id = lk.loan_id
		WHERE l.returned_at IS NULL AND lk.key_id IN (?)`, keyIDs)
	if err != nil {
		return nil, fmt.Errorf("expand outstanding query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("load outstanding loans: %w", err)
	}
	defer rows.Close()

	holder := make(map[string]string) // key ID -> loan ID
	loanIDs := make([]string, 0)
	for rows.Next() {
		var keyID, loanID string
		if err := rows.Scan(&keyID, &loanID); err != nil {
			return nil, fmt.Errorf("scan outstanding loan: %w", err)
		}
		if _, seen := holder[keyID]; !seen {
			holder[keyID] = loanID
		}
		loanIDs = append(loanIDs, loanID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(holder) == 0 {
		return out, nil
	}

	loans, err := s.loansByIDs(ctx, loanIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.KeyLoan, len(loans))
	for i := range loans {
		byID[loans[i].ID] = &loans[i]
	}
	for keyID, loanID := range holder {
		if l, ok := byID[loanID]; ok {
			out[keyID] = l
		}
	}
	return out, nil
}

// loansByIDs loads the given loans with member sets attached.
func (s *Store) loansByIDs(ctx context.Context, ids []string) ([]model.KeyLoan, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In("SELECT "+loanColumns+" FROM key_loans WHERE id IN (?) ORDER BY created_at DESC, id DESC", ids)
	if err != nil {
		return nil, fmt.Errorf("expand loans query: %w", err)
	}
	var loans []model.KeyLoan
	if err := s.db.SelectContext(ctx, &loans, s.rebind(q), args...); err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	if err := s.attachLoanMembers(ctx, loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// LoansForKey returns the full loan history of one key, newest first.
func (s *Store) LoansForKey(ctx context.Context, keyID string) ([]model.KeyLoan, error) {
	loans := []model.KeyLoan{}
	err := s.db.SelectContext(ctx, &loans, s.rebind(`
		SELECT `+loanColumns+` FROM key_loans
		WHERE id IN (SELECT loan_id FROM key_loan_keys WHERE key_id = ?)
		ORDER BY created_at DESC, id DESC`), keyID)
	if err != nil {
		return nil, fmt.Errorf("load loan history: %w", err)
	}
	if err := s.attachLoanMembers(ctx, loans); err != nil {
		return nil, err
	}
	return loans, nil
}

// lockMembers takes row locks on the requested key and card rows. On
// SQLite this is a no-op: the single write connection already serializes
// transactions. On Postgres the sorted FOR UPDATE prevents two concurrent
// reservations sharing a key or a card from both passing the conflict
// check, and the fixed order (keys before cards, IDs ascending) avoids
// deadlocks between overlapping sets.
func (s *Store) lockMembers(ctx context.Context, tx *sqlx.Tx, keyIDs, cardIDs []string) error {
	if s.driver != DriverPostgres {
		return nil
	}
	if err := lockRows(ctx, tx, "keys", keyIDs); err != nil {
		return err
	}
	return lockRows(ctx, tx, "cards", cardIDs)
}

func lockRows(ctx context.Context, tx *sqlx.Tx, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	q, args, err := sqlx.In("SELECT id FROM "+table+" WHERE id IN (?) ORDER BY id FOR UPDATE", sorted)
	if err != nil {
		return fmt.Errorf("expand lock query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
		return fmt.Errorf("lock %s: %w", table, err)
	}
	return nil
}

// checkConflicts looks for outstanding loans whose key or card sets
// intersect the requested ones, excluding excludeLoanID (the loan being
// updated). Must run inside the same transaction as the write.
func (s *Store) checkConflicts(ctx context.Context, tx *sqlx.Tx, keyIDs, cardIDs []string, excludeLoanID string) error {
	conflictKeys, err := conflictingMembers(ctx, tx, "key_loan_keys", "key_id", keyIDs, excludeLoanID)
	if err != nil {
		return err
	}
	conflictCards, err := conflictingMembers(ctx, tx, "key_loan_cards", "card_id", cardIDs, excludeLoanID)
	if err != nil {
		return err
	}
	if len(conflictKeys) > 0 || len(conflictCards) > 0 {
		return &ConflictError{KeyIDs: conflictKeys, CardIDs: conflictCards}
	}
	return nil
}

func conflictingMembers(ctx context.Context, tx *sqlx.Tx, table, memberCol string, ids []string, excludeLoanID string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	base := fmt.Sprintf(`
		SELECT DISTINCT m.%s FROM %s m
		JOIN key_loans l ON l.id = m.loan_id
		WHERE l.returned_at IS NULL AND m.%s IN (?)`, memberCol, table, memberCol)
	args := []interface{}{ids}
	if excludeLoanID != "" {
		base += " AND l.id <> ?"
		args = append(args, excludeLoanID)
	}
	base += fmt.Sprintf(" ORDER BY m.%s", memberCol)

	q, expanded, err := sqlx.In(base, args...)
	if err != nil {
		return nil, fmt.Errorf("expand conflict query: %w", err)
	}
	var conflicts []string
	if err := sqlx.SelectContext(ctx, tx, &conflicts, tx.Rebind(q), expanded...); err != nil {
		return nil, fmt.Errorf("check conflicts in %s: %w", table, err)
	}
	return conflicts, nil
}

// attachLoanMembers loads the key and card sets for a batch of loans.
func (s *Store) attachLoanMembers(ctx context.Context, loans []model.KeyLoan) error {
	if len(loans) == 0 {
		return nil
	}
	ids := make([]string, len(loans))
	for i := range loans {
		ids[i] = loans[i].ID
	}
	keys, err := memberSets(ctx, s.db, "key_loan_keys", "loan_id", "key_id", ids)
	if err != nil {
		return err
	}
	cards, err := memberSets(ctx, s.db, "key_loan_cards", "loan_id", "card_id", ids)
	if err != nil {
		return err
	}
	for i := range loans {
		loans[i].KeyIDs = keys[loans[i].ID]
		loans[i].CardIDs = cards[loans[i].ID]
	}
	return nil
}
