package model

import "time"

// LoanType distinguishes who a loan is handed out to.
type LoanType string

const (
	LoanTypeTenant      LoanType = "TENANT"
	LoanTypeMaintenance LoanType = "MAINTENANCE"
)

// ValidLoanType reports whether t is a known loan type.
func ValidLoanType(t LoanType) bool {
	return t == LoanTypeTenant || t == LoanTypeMaintenance
}

// LoanState is the derived lifecycle state of a loan record.
type LoanState string

const (
	LoanStateCreated  LoanState = "CREATED"
	LoanStatePickedUp LoanState = "PICKED_UP"
	LoanStateReturned LoanState = "RETURNED"
)

// KeyLoan is one hand-out of a set of keys (and optionally cards) to a
// contact. The key set belongs to the loan as a whole; there is no per-key
// sub-state within a single record.
type KeyLoan struct {
	ID                 string     `db:"id" json:"id"`
	KeyIDs             []string   `db:"-" json:"keyIds"`
	CardIDs            []string   `db:"-" json:"cardIds,omitempty"`
	LoanType           LoanType   `db:"loan_type" json:"loanType"`
	ContactID          string     `db:"contact_id" json:"contactId"`
	SecondaryContactID *string    `db:"secondary_contact_id" json:"secondaryContactId,omitempty"`
	Description        string     `db:"description" json:"description"`
	PickedUpAt         *time.Time `db:"picked_up_at" json:"pickedUpAt"`
	ReturnedAt         *time.Time `db:"returned_at" json:"returnedAt"`
	AvailableFrom      *time.Time `db:"available_from" json:"availableToNextTenantFrom"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	CreatedBy          string     `db:"created_by" json:"createdBy"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
	UpdatedBy          string     `db:"updated_by" json:"updatedBy"`
}

// LoanDetails is a loan with the optional expansions of the detail
// endpoint: full card records and the keys with their key-system link.
type LoanDetails struct {
	*KeyLoan
	Cards []Card `json:"cards,omitempty"`
	Keys  []Key  `json:"keys,omitempty"`
}

// State derives the lifecycle state from the timestamp fields.
func (l *KeyLoan) State() LoanState {
	switch {
	case l.ReturnedAt != nil:
		return LoanStateReturned
	case l.PickedUpAt != nil:
		return LoanStatePickedUp
	default:
		return LoanStateCreated
	}
}

// Active reports whether the keys are physically out with the contact:
// picked up and not yet returned.
func (l *KeyLoan) Active() bool {
	return l.PickedUpAt != nil && l.ReturnedAt == nil
}

// Outstanding reports whether the loan still blocks its keys from being
// loaned elsewhere. Any loan that has not been returned holds its keys,
// whether or not they have been physically picked up.
func (l *KeyLoan) Outstanding() bool {
	return l.ReturnedAt == nil
}
