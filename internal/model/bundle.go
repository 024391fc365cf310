package model

import "time"

// KeyBundle is a named grouping of keys, independent of loan state. A key
// may belong to any number of bundles whether or not it is currently out.
type KeyBundle struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	KeyIDs      []string  `db:"-" json:"keyIds"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// BundleKeyStatus pairs one member key with its current loan state and,
// when requested, its loan and event history.
type BundleKeyStatus struct {
	Key        Key        `json:"key"`
	ActiveLoan *KeyLoan   `json:"activeLoan"`
	Loans      []KeyLoan  `json:"loans,omitempty"`
	Events     []KeyEvent `json:"events,omitempty"`
}

// BundleDetails is the aggregated read model for a bundle: the bundle
// itself plus the per-key status view.
type BundleDetails struct {
	Bundle KeyBundle         `json:"bundle"`
	Keys   []BundleKeyStatus `json:"keys"`
}
