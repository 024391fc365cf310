package query

// DerivedField describes a filterable field that lives on another aggregate
// and is reached through a membership join. Exists is the correlated
// subquery up to and excluding the member condition; Column is the column
// the condition applies to inside that subquery.
type DerivedField struct {
	Exists string
	Column string
}

// Resource describes the filter surface of one searchable resource: which
// request fields are accepted, which columns they map to, and how derived
// fields join out. Fields not listed here are rejected by the parser, so a
// typo never silently matches nothing.
type Resource struct {
	Name        string
	Table       string
	Columns     map[string]string // direct AND-predicate fields
	Presence    map[string]string // tri-state null-check fields
	Text        map[string]string // fields usable inside the OR-group
	DefaultText []string          // OR-group fields when none are supplied
	Bools       map[string]bool   // fields whose values are true/false

	Derived map[string]DerivedField
	// CountSubquery counts the resource's key-set cardinality for the
	// minKeys/maxKeys bounds. Empty when the resource has no key set.
	CountSubquery string
	OrderBy       string
}

// Loans returns the filter surface of the key-loan resource.
func Loans() *Resource {
	return &Resource{
		Name:  "loans",
		Table: "key_loans",
		Columns: map[string]string{
			"loanType":         "key_loans.loan_type",
			"contact":          "key_loans.contact_id",
			"secondaryContact": "key_loans.secondary_contact_id",
			"createdAt":        "key_loans.created_at",
			"updatedAt":        "key_loans.updated_at",
			"pickedUpAt":       "key_loans.picked_up_at",
			"returnedAt":       "key_loans.returned_at",
			"availableFrom":    "key_loans.available_from",
		},
		Presence: map[string]string{
			"hasPickedUp":      "key_loans.picked_up_at",
			"hasReturned":      "key_loans.returned_at",
			"hasAvailableFrom": "key_loans.available_from",
		},
		Text: map[string]string{
			"contact":          "key_loans.contact_id",
			"secondaryContact": "key_loans.secondary_contact_id",
			"description":      "key_loans.description",
		},
		DefaultText: []string{"contact", "secondaryContact"},
		Derived: map[string]DerivedField{
			"keyName": {
				Exists: "SELECT 1 FROM key_loan_keys lk JOIN keys k ON k.id = lk.key_id WHERE lk.loan_id = key_loans.id AND ",
				Column: "k.name",
			},
			"keyType": {
				Exists: "SELECT 1 FROM key_loan_keys lk JOIN keys k ON k.id = lk.key_id WHERE lk.loan_id = key_loans.id AND ",
				Column: "k.key_type",
			},
			"rentalObject": {
				Exists: "SELECT 1 FROM key_loan_keys lk JOIN keys k ON k.id = lk.key_id WHERE lk.loan_id = key_loans.id AND ",
				Column: "k.rental_object_code",
			},
			"cardLabel": {
				Exists: "SELECT 1 FROM key_loan_cards lc JOIN cards c ON c.id = lc.card_id WHERE lc.loan_id = key_loans.id AND ",
				Column: "c.label",
			},
		},
		CountSubquery: "SELECT COUNT(*) FROM key_loan_keys lk WHERE lk.loan_id = key_loans.id",
		OrderBy:       "key_loans.created_at DESC, key_loans.id DESC",
	}
}

// Bundles returns the filter surface of the key-bundle resource. Bundles
// share the loan filter grammar but join through bundle membership.
func Bundles() *Resource {
	return &Resource{
		Name:  "bundles",
		Table: "key_bundles",
		Columns: map[string]string{
			"name":      "key_bundles.name",
			"createdAt": "key_bundles.created_at",
			"updatedAt": "key_bundles.updated_at",
		},
		Presence: map[string]string{},
		Text: map[string]string{
			"name":        "key_bundles.name",
			"description": "key_bundles.description",
		},
		DefaultText: []string{"name", "description"},
		Derived: map[string]DerivedField{
			"keyName": {
				Exists: "SELECT 1 FROM key_bundle_keys bk JOIN keys k ON k.id = bk.key_id WHERE bk.bundle_id = key_bundles.id AND ",
				Column: "k.name",
			},
			"rentalObject": {
				Exists: "SELECT 1 FROM key_bundle_keys bk JOIN keys k ON k.id = bk.key_id WHERE bk.bundle_id = key_bundles.id AND ",
				Column: "k.rental_object_code",
			},
		},
		CountSubquery: "SELECT COUNT(*) FROM key_bundle_keys bk WHERE bk.bundle_id = key_bundles.id",
		OrderBy:       "key_bundles.created_at DESC, key_bundles.id DESC",
	}
}

// Keys returns the filter surface of the key catalogue itself.
func Keys() *Resource {
	return &Resource{
		Name:  "keys",
		Table: "keys",
		Columns: map[string]string{
			"keyType":        "keys.key_type",
			"rentalObject":   "keys.rental_object_code",
			"sequenceNumber": "keys.sequence_number",
			"disposed":       "keys.disposed",
			"createdAt":      "keys.created_at",
		},
		Presence: map[string]string{
			"hasKeySystem": "keys.key_system_id",
		},
		Bools: map[string]bool{"disposed": true},
		Text: map[string]string{
			"name":         "keys.name",
			"rentalObject": "keys.rental_object_code",
		},
		DefaultText: []string{"name", "rentalObject"},
		Derived:     map[string]DerivedField{},
		OrderBy:     "keys.created_at DESC, keys.id DESC",
	}
}
