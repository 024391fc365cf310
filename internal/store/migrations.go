package store

import (
	"fmt"
	"strings"
)

// migrate applies the schema. Statements are portable across SQLite and
// Postgres; IDs are UUID strings, membership sets live in join tables.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS keys (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			sequence_number INTEGER NOT NULL DEFAULT 0,
			key_type TEXT NOT NULL,
			rental_object_code TEXT NOT NULL DEFAULT '',
			key_system_id TEXT,
			disposed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			disposed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS key_loans (
			id TEXT PRIMARY KEY,
			loan_type TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			secondary_contact_id TEXT,
			description TEXT NOT NULL DEFAULT '',
			picked_up_at TIMESTAMP,
			returned_at TIMESTAMP,
			available_from TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL,
			updated_by TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS key_loan_keys (
			loan_id TEXT NOT NULL REFERENCES key_loans(id) ON DELETE CASCADE,
			key_id TEXT NOT NULL REFERENCES keys(id),
			PRIMARY KEY (loan_id, key_id)
		)`,

		`CREATE TABLE IF NOT EXISTS key_loan_cards (
			loan_id TEXT NOT NULL REFERENCES key_loans(id) ON DELETE CASCADE,
			card_id TEXT NOT NULL REFERENCES cards(id),
			PRIMARY KEY (loan_id, card_id)
		)`,

		`CREATE TABLE IF NOT EXISTS key_bundles (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS key_bundle_keys (
			bundle_id TEXT NOT NULL REFERENCES key_bundles(id) ON DELETE CASCADE,
			key_id TEXT NOT NULL REFERENCES keys(id),
			PRIMARY KEY (bundle_id, key_id)
		)`,

		`CREATE TABLE IF NOT EXISTS key_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			status TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS key_event_keys (
			event_id TEXT NOT NULL REFERENCES key_events(id) ON DELETE CASCADE,
			key_id TEXT NOT NULL REFERENCES keys(id),
			PRIMARY KEY (event_id, key_id)
		)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			occurred_at TIMESTAMP NOT NULL,
			actor TEXT NOT NULL DEFAULT '',
			operation TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_key_loan_keys_key ON key_loan_keys (key_id)`,
		`CREATE INDEX IF NOT EXISTS idx_key_loan_cards_card ON key_loan_cards (card_id)`,
		`CREATE INDEX IF NOT EXISTS idx_key_loans_returned ON key_loans (returned_at)`,
		`CREATE INDEX IF NOT EXISTS idx_key_loans_created ON key_loans (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_key_bundle_keys_key ON key_bundle_keys (key_id)`,
		`CREATE INDEX IF NOT EXISTS idx_key_event_keys_key ON key_event_keys (key_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_occurred ON audit_log (occurred_at)`,
	}

	for i, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			head := strings.SplitN(strings.TrimSpace(m), "\n", 2)[0]
			return fmt.Errorf("migration %d (%s): %w", i+1, head, err)
		}
	}
	return nil
}
