// Package model defines the domain records and API envelopes shared by the
// store, service, and handler layers.
package model

import "time"

// KeyType classifies what a physical key opens.
type KeyType string

const (
	KeyTypeApartment KeyType = "APARTMENT"
	KeyTypeStorage   KeyType = "STORAGE"
	KeyTypeShared    KeyType = "SHARED"
	KeyTypeCommon    KeyType = "COMMON"
	KeyTypeGarage    KeyType = "GARAGE"
)

// ValidKeyType reports whether t is one of the known key types.
func ValidKeyType(t KeyType) bool {
	switch t {
	case KeyTypeApartment, KeyTypeStorage, KeyTypeShared, KeyTypeCommon, KeyTypeGarage:
		return true
	}
	return false
}

// Key is a physical key in the catalogue. Identity is immutable; the
// metadata fields may change over the key's lifetime.
type Key struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	SequenceNumber   int       `db:"sequence_number" json:"sequenceNumber"`
	KeyType          KeyType   `db:"key_type" json:"keyType"`
	RentalObjectCode string    `db:"rental_object_code" json:"rentalObjectCode"`
	KeySystemID      *string   `db:"key_system_id" json:"keySystemId,omitempty"`
	Disposed         bool      `db:"disposed" json:"disposed"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// Card is an access card that can be handed out alongside keys on a loan.
type Card struct {
	ID        string    `db:"id" json:"id"`
	Label     string    `db:"label" json:"label"`
	Disposed  bool      `db:"disposed" json:"disposed"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
