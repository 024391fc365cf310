package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/keydesk/keydesk/internal/audit"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/query"
	"github.com/keydesk/keydesk/internal/store"
)

// LoanInput is the write payload for creating or updating a loan.
type LoanInput struct {
	KeyIDs             []string       `json:"keyIds" validate:"required,min=1,dive,required"`
	CardIDs            []string       `json:"cardIds" validate:"omitempty,dive,required"`
	LoanType           model.LoanType `json:"loanType" validate:"required"`
	ContactID          string         `json:"contactId" validate:"required"`
	SecondaryContactID *string        `json:"secondaryContactId"`
	Description        string         `json:"description"`
	PickedUpAt         *time.Time     `json:"pickedUpAt"`
	ReturnedAt         *time.Time     `json:"returnedAt"`
	AvailableFrom      *time.Time     `json:"availableToNextTenantFrom"`
}

// LoanService implements loan reservation and the loan lifecycle.
type LoanService struct {
	store *store.Store
	audit *audit.Recorder
	log   *slog.Logger
	res   *query.Resource
}

func NewLoanService(st *store.Store, rec *audit.Recorder, log *slog.Logger) *LoanService {
	return &LoanService{store: st, audit: rec, log: log, res: query.Loans()}
}

// List returns one page of loans in fixed order plus the total count.
func (s *LoanService) List(ctx context.Context, page query.Page) ([]model.KeyLoan, int, error) {
	return s.store.ListLoans(ctx, page.Limit, page.Offset())
}

// Search runs the filter grammar over loans.
func (s *LoanService) Search(ctx context.Context, params url.Values) ([]model.KeyLoan, int, error) {
	c, err := compileSearch(params, s.res, s.store.Placeholder())
	if err != nil {
		return nil, 0, err
	}
	return s.store.SearchLoans(ctx, c)
}

func (s *LoanService) Get(ctx context.Context, id string) (*model.KeyLoan, error) {
	loan, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "loan", id)
	}
	return loan, nil
}

// Details returns one loan, optionally expanded with its full card
// records and with the keys themselves (carrying their key-system link).
func (s *LoanService) Details(ctx context.Context, id string, includeCards, includeKeySystem bool) (*model.LoanDetails, error) {
	loan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &model.LoanDetails{KeyLoan: loan}
	if includeCards {
		if d.Cards, err = s.store.CardsByIDs(ctx, loan.CardIDs); err != nil {
			return nil, err
		}
	}
	if includeKeySystem {
		if d.Keys, err = s.store.KeysByIDs(ctx, loan.KeyIDs); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Create reserves the requested key and card sets atomically. When any of
// them is part of another loan with returnedAt still null, nothing is
// written and a ConflictError names the clashing identifiers.
func (s *LoanService) Create(ctx context.Context, in LoanInput, actor string) (*model.KeyLoan, error) {
	if err := s.checkInput(ctx, in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	loan := &model.KeyLoan{
		ID:                 newID(),
		KeyIDs:             in.KeyIDs,
		CardIDs:            in.CardIDs,
		LoanType:           in.LoanType,
		ContactID:          in.ContactID,
		SecondaryContactID: in.SecondaryContactID,
		Description:        in.Description,
		PickedUpAt:         in.PickedUpAt,
		ReturnedAt:         in.ReturnedAt,
		AvailableFrom:      in.AvailableFrom,
		CreatedAt:          now,
		CreatedBy:          actor,
		UpdatedAt:          now,
		UpdatedBy:          actor,
	}
	applyReturnDefaults(loan)

	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, mapStoreErr(err, "loan", loan.ID)
	}

	s.audit.Record(ctx, actor, "loan.create", "loan", loan.ID,
		fmt.Sprintf("keys %s", strings.Join(loan.KeyIDs, ",")))
	s.log.Info("loan created", "loan_id", loan.ID, "keys", len(loan.KeyIDs), "state", loan.State())
	return loan, nil
}

// Update rewrites a loan. The conflict check reruns only when the key or
// card set changed, excluding the loan itself. A returned loan is
// immutable: the record is terminal and a new loan covers further use of
// the same keys.
func (s *LoanService) Update(ctx context.Context, id string, in LoanInput, actor string) (*model.KeyLoan, error) {
	if err := s.checkInput(ctx, in); err != nil {
		return nil, err
	}

	existing, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "loan", id)
	}
	if existing.State() == model.LoanStateReturned {
		return nil, validationf("loan %s is already returned", id)
	}

	loan := &model.KeyLoan{
		ID:                 id,
		KeyIDs:             in.KeyIDs,
		CardIDs:            in.CardIDs,
		LoanType:           in.LoanType,
		ContactID:          in.ContactID,
		SecondaryContactID: in.SecondaryContactID,
		Description:        in.Description,
		PickedUpAt:         in.PickedUpAt,
		ReturnedAt:         in.ReturnedAt,
		AvailableFrom:      in.AvailableFrom,
		CreatedAt:          existing.CreatedAt,
		CreatedBy:          existing.CreatedBy,
		UpdatedAt:          time.Now().UTC(),
		UpdatedBy:          actor,
	}
	applyReturnDefaults(loan)

	membersChanged := !sameIDSet(existing.KeyIDs, in.KeyIDs) || !sameIDSet(existing.CardIDs, in.CardIDs)
	if err := s.store.UpdateLoan(ctx, loan, membersChanged); err != nil {
		return nil, mapStoreErr(err, "loan", id)
	}

	s.audit.Record(ctx, actor, "loan.update", "loan", id, string(loan.State()))
	return loan, nil
}

// Delete removes a loan unless it is active: keys that are physically out
// with a contact may not be discarded by deleting their loan record.
func (s *LoanService) Delete(ctx context.Context, id, actor string) error {
	loan, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return mapStoreErr(err, "loan", id)
	}
	if loan.Active() {
		return &ActiveLoanError{LoanID: id}
	}
	if err := s.store.DeleteLoan(ctx, id); err != nil {
		return mapStoreErr(err, "loan", id)
	}
	s.audit.Record(ctx, actor, "loan.delete", "loan", id, "")
	return nil
}

// checkInput validates the payload shape and domain rules shared by
// create and update, including referential checks against the catalogue.
func (s *LoanService) checkInput(ctx context.Context, in LoanInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	if !model.ValidLoanType(in.LoanType) {
		return validationf("unknown loan type %q", in.LoanType)
	}
	if in.ReturnedAt != nil && in.PickedUpAt == nil {
		return validationf("returnedAt requires pickedUpAt")
	}
	if in.PickedUpAt != nil && in.ReturnedAt != nil && in.ReturnedAt.Before(*in.PickedUpAt) {
		return validationf("returnedAt precedes pickedUpAt")
	}
	if dup := duplicateID(in.KeyIDs); dup != "" {
		return validationf("duplicate key id %s", dup)
	}
	if dup := duplicateID(in.CardIDs); dup != "" {
		return validationf("duplicate card id %s", dup)
	}

	missing, err := s.store.MissingKeys(ctx, in.KeyIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return validationf("unknown key ids: %s", strings.Join(missing, ", "))
	}
	missing, err = s.store.MissingCards(ctx, in.CardIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return validationf("unknown card ids: %s", strings.Join(missing, ", "))
	}
	return nil
}

// applyReturnDefaults fills availableToNextTenantFrom on transition into
// RETURNED: without an explicit date the keys become available the moment
// they come back.
func applyReturnDefaults(loan *model.KeyLoan) {
	if loan.ReturnedAt != nil && loan.AvailableFrom == nil {
		t := *loan.ReturnedAt
		loan.AvailableFrom = &t
	}
}

func duplicateID(ids []string) string {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id
		}
		seen[id] = struct{}{}
	}
	return ""
}
