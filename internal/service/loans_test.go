package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/keydesk/keydesk/internal/model"
)

func TestCreateLoanLifecycleStates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 3)

	loan, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    keys[:1],
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-1",
	}, "tester")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if loan.State() != model.LoanStateCreated {
		t.Errorf("expected CREATED, got %s", loan.State())
	}

	pickedUp := time.Now().UTC()
	loan, err = env.loans.Update(ctx, loan.ID, LoanInput{
		KeyIDs:     keys[:1],
		LoanType:   model.LoanTypeTenant,
		ContactID:  "P-1",
		PickedUpAt: &pickedUp,
	}, "tester")
	if err != nil {
		t.Fatalf("Update to picked up: %v", err)
	}
	if loan.State() != model.LoanStatePickedUp {
		t.Errorf("expected PICKED_UP, got %s", loan.State())
	}

	returned := pickedUp.Add(48 * time.Hour)
	loan, err = env.loans.Update(ctx, loan.ID, LoanInput{
		KeyIDs:     keys[:1],
		LoanType:   model.LoanTypeTenant,
		ContactID:  "P-1",
		PickedUpAt: &pickedUp,
		ReturnedAt: &returned,
	}, "tester")
	if err != nil {
		t.Fatalf("Update to returned: %v", err)
	}
	if loan.State() != model.LoanStateReturned {
		t.Errorf("expected RETURNED, got %s", loan.State())
	}
	if loan.AvailableFrom == nil || !loan.AvailableFrom.Equal(returned) {
		t.Errorf("expected availableToNextTenantFrom defaulted to return time, got %v", loan.AvailableFrom)
	}
}

func TestReturnHonorsExplicitAvailabilityDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 1)

	pickedUp := time.Now().UTC()
	returned := pickedUp.Add(time.Hour)
	leaseEnd := returned.Add(30 * 24 * time.Hour)

	loan, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:        keys,
		LoanType:      model.LoanTypeTenant,
		ContactID:     "P-1",
		PickedUpAt:    &pickedUp,
		ReturnedAt:    &returned,
		AvailableFrom: &leaseEnd,
	}, "tester")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if loan.AvailableFrom == nil || !loan.AvailableFrom.Equal(leaseEnd) {
		t.Errorf("expected explicit availability date kept, got %v", loan.AvailableFrom)
	}
}

func TestReturnedLoanIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 1)

	pickedUp := time.Now().UTC()
	returned := pickedUp.Add(time.Hour)
	loan, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:     keys,
		LoanType:   model.LoanTypeTenant,
		ContactID:  "P-1",
		PickedUpAt: &pickedUp,
		ReturnedAt: &returned,
	}, "tester")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = env.loans.Update(ctx, loan.ID, LoanInput{
		KeyIDs:    keys,
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-2",
	}, "tester")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for update of returned loan, got %v", err)
	}
}

func TestLoanValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 1)
	now := time.Now().UTC()

	tests := []struct {
		name string
		in   LoanInput
	}{
		{"no keys", LoanInput{LoanType: model.LoanTypeTenant, ContactID: "P-1"}},
		{"no contact", LoanInput{KeyIDs: keys, LoanType: model.LoanTypeTenant}},
		{"bad loan type", LoanInput{KeyIDs: keys, LoanType: "VISITOR", ContactID: "P-1"}},
		{"unknown key", LoanInput{KeyIDs: []string{"missing"}, LoanType: model.LoanTypeTenant, ContactID: "P-1"}},
		{"duplicate key", LoanInput{KeyIDs: []string{keys[0], keys[0]}, LoanType: model.LoanTypeTenant, ContactID: "P-1"}},
		{"returned without pickup", LoanInput{KeyIDs: keys, LoanType: model.LoanTypeTenant, ContactID: "P-1", ReturnedAt: &now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.loans.Create(ctx, tt.in, "tester")
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestConflictOnOverlappingKeySets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 3)

	if _, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    []string{keys[0], keys[1]},
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-1",
	}, "tester"); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	_, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    []string{keys[1], keys[2]},
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-2",
	}, "tester")
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(cerr.KeyIDs) != 1 || cerr.KeyIDs[0] != keys[1] {
		t.Errorf("expected conflict on %s, got %v", keys[1], cerr.KeyIDs)
	}
}

func TestConflictOnOverlappingCardSets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 2)
	card := env.seedCard(t, "C-1")

	if _, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    keys[:1],
		CardIDs:   []string{card},
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-1",
	}, "tester"); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	_, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    keys[1:],
		CardIDs:   []string{card},
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-2",
	}, "tester")
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(cerr.CardIDs) != 1 || cerr.CardIDs[0] != card {
		t.Errorf("expected card conflict on %s, got %v", card, cerr.CardIDs)
	}
}

func TestUpdateExcludesSelfFromConflictCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 2)

	loan, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    keys[:1],
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-1",
	}, "tester")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Growing the set keeps the original key; the loan must not
	// conflict with itself.
	if _, err := env.loans.Update(ctx, loan.ID, LoanInput{
		KeyIDs:    keys,
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-1",
	}, "tester"); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestKeysReusableAfterReturn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 1)

	pickedUp := time.Now().UTC()
	returned := pickedUp.Add(time.Hour)
	if _, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:     keys,
		LoanType:   model.LoanTypeTenant,
		ContactID:  "P-1",
		PickedUpAt: &pickedUp,
		ReturnedAt: &returned,
	}, "tester"); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	if _, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    keys,
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-2",
	}, "tester"); err != nil {
		t.Fatalf("expected reuse after return, got %v", err)
	}
}

func TestDeleteGuardsActiveLoan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 1)

	pickedUp := time.Now().UTC()
	loan, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:     keys,
		LoanType:   model.LoanTypeTenant,
		ContactID:  "P-1",
		PickedUpAt: &pickedUp,
	}, "tester")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = env.loans.Delete(ctx, loan.ID, "tester")
	var aerr *ActiveLoanError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected ActiveLoanError, got %v", err)
	}

	returned := pickedUp.Add(time.Hour)
	if _, err := env.loans.Update(ctx, loan.ID, LoanInput{
		KeyIDs:     keys,
		LoanType:   model.LoanTypeTenant,
		ContactID:  "P-1",
		PickedUpAt: &pickedUp,
		ReturnedAt: &returned,
	}, "tester"); err != nil {
		t.Fatalf("Update to returned: %v", err)
	}
	if err := env.loans.Delete(ctx, loan.ID, "tester"); err != nil {
		t.Fatalf("expected delete after return, got %v", err)
	}

	_, err = env.loans.Get(ctx, loan.ID)
	var nerr *NotFoundError
	if !errors.As(err, &nerr) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}

func TestConcurrentReservationsSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 1)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.loans.Create(ctx, LoanInput{
				KeyIDs:    keys,
				LoanType:  model.LoanTypeTenant,
				ContactID: "P-1",
			}, "tester")
			errs[i] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var cerr *ConflictError
		if !errors.As(err, &cerr) {
			t.Errorf("expected ConflictError for loser, got %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	loans, total, err := env.loans.List(ctx, pageOf(1, 50))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(loans) != 1 {
		t.Fatalf("expected a single stored loan, got %d", total)
	}
}

func TestConcurrentCardReservationsSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const workers = 16
	keys := env.seedKeys(t, workers)
	card := env.seedCard(t, "C-1")

	var wg sync.WaitGroup
	errs := make([]error, workers)

	// Disjoint key sets, one shared card: the card alone must decide the race.
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.loans.Create(ctx, LoanInput{
				KeyIDs:    []string{keys[i]},
				CardIDs:   []string{card},
				LoanType:  model.LoanTypeTenant,
				ContactID: "P-1",
			}, "tester")
			errs[i] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var cerr *ConflictError
		if !errors.As(err, &cerr) {
			t.Errorf("expected ConflictError for loser, got %v", err)
			continue
		}
		if len(cerr.KeyIDs) != 0 || len(cerr.CardIDs) != 1 || cerr.CardIDs[0] != card {
			t.Errorf("conflict members = keys %v cards %v, want only card %s", cerr.KeyIDs, cerr.CardIDs, card)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	_, total, err := env.loans.List(ctx, pageOf(1, 50))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected a single stored loan, got %d", total)
	}
}

func TestSearchLoansFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 2)

	if _, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    keys[:1],
		LoanType:  model.LoanTypeTenant,
		ContactID: "anna.larsson",
	}, "tester"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    keys[1:],
		LoanType:  model.LoanTypeMaintenance,
		ContactID: "bob.builder",
	}, "tester"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loans, total, err := env.loans.Search(ctx, url.Values{"loanType": {"TENANT"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(loans) != 1 || loans[0].ContactID != "anna.larsson" {
		t.Fatalf("unexpected result: total=%d loans=%+v", total, loans)
	}

	loans, total, err = env.loans.Search(ctx, url.Values{"q": {"anna"}})
	if err != nil {
		t.Fatalf("Search q: %v", err)
	}
	if total != 1 || len(loans) != 1 {
		t.Fatalf("expected one free-text match, got %d", total)
	}

	_, _, err = env.loans.Search(ctx, url.Values{"colour": {"red"}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown field, got %v", err)
	}
}

func TestSearchLoansCreatedAtClosedRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 3)

	// Insert through the store to pin each loan's creation year.
	for i, year := range []int{2023, 2024, 2025} {
		at := time.Date(year, 6, 15, 12, 0, 0, 0, time.UTC)
		loan := &model.KeyLoan{
			ID:        newID(),
			KeyIDs:    keys[i : i+1],
			LoanType:  model.LoanTypeTenant,
			ContactID: fmt.Sprintf("P-%d", year),
			CreatedAt: at,
			CreatedBy: "tester",
			UpdatedAt: at,
			UpdatedBy: "tester",
		}
		if err := env.store.CreateLoan(ctx, loan); err != nil {
			t.Fatalf("seed loan %d: %v", year, err)
		}
	}

	loans, total, err := env.loans.Search(ctx, url.Values{
		"createdAt": {">=2024-01-01", "<=2024-12-31"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(loans) != 1 {
		t.Fatalf("expected exactly the 2024 loan, got total=%d loans=%+v", total, loans)
	}
	if loans[0].ContactID != "P-2024" {
		t.Fatalf("matched loan contact = %q, want P-2024", loans[0].ContactID)
	}

	// Open lower bound only: 2024 and 2025 match, newest first.
	loans, total, err = env.loans.Search(ctx, url.Values{"createdAt": {">=2024-01-01"}})
	if err != nil {
		t.Fatalf("Search lower bound: %v", err)
	}
	if total != 2 || len(loans) != 2 || loans[0].ContactID != "P-2025" {
		t.Fatalf("unexpected lower-bound result: total=%d loans=%+v", total, loans)
	}
}

func TestSearchLoansKeyCountIncludesDisposed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.seedKeys(t, 2)

	if _, err := env.loans.Create(ctx, LoanInput{
		KeyIDs:    keys,
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-1",
	}, "tester"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Disposing a key while it is out does not shrink the loan's set.
	if _, err := env.keys.Update(ctx, keys[0], KeyInput{
		Name:             "K-A",
		SequenceNumber:   1,
		KeyType:          model.KeyTypeApartment,
		RentalObjectCode: "A-101",
		Disposed:         true,
	}, "tester"); err != nil {
		t.Fatalf("dispose key: %v", err)
	}

	_, total, err := env.loans.Search(ctx, url.Values{"minKeys": {"2"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 {
		t.Errorf("expected disposed key to still count, got total %d", total)
	}

	_, total, err = env.loans.Search(ctx, url.Values{"maxKeys": {"1"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 0 {
		t.Errorf("expected no loans with at most one key, got %d", total)
	}
}

func TestLoanDetailsExpansions(t *testing.T) {
	env := newTestEnv(t)
	keys := env.seedKeys(t, 2)
	card := env.seedCard(t, "C-7")

	loan, err := env.loans.Create(context.Background(), LoanInput{
		KeyIDs:    keys,
		CardIDs:   []string{card},
		LoanType:  model.LoanTypeTenant,
		ContactID: "P-1",
	}, "test")
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}

	plain, err := env.loans.Details(context.Background(), loan.ID, false, false)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if plain.Cards != nil || plain.Keys != nil {
		t.Fatalf("unexpected expansions: cards=%v keys=%v", plain.Cards, plain.Keys)
	}

	full, err := env.loans.Details(context.Background(), loan.ID, true, true)
	if err != nil {
		t.Fatalf("details with expansions: %v", err)
	}
	if len(full.Cards) != 1 || full.Cards[0].Label != "C-7" {
		t.Fatalf("cards = %+v, want one card C-7", full.Cards)
	}
	if len(full.Keys) != 2 {
		t.Fatalf("keys = %d, want 2", len(full.Keys))
	}

	if _, err := env.loans.Details(context.Background(), "nope", true, true); err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("err = %v, want NotFoundError", err)
		}
	} else {
		t.Fatal("expected not-found error")
	}
}
