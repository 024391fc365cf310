package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/keydesk/keydesk/internal/audit"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/query"
	"github.com/keydesk/keydesk/internal/store"
)

func pageOf(page, limit int) query.Page {
	return query.Page{Page: page, Limit: limit}
}

type testEnv struct {
	store   *store.Store
	loans   *LoanService
	bundles *BundleService
	keys    *KeyService
	events  *EventService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := audit.NewRecorder(st, logger)
	return &testEnv{
		store:   st,
		loans:   NewLoanService(st, rec, logger),
		bundles: NewBundleService(st, rec, logger),
		keys:    NewKeyService(st, rec, logger),
		events:  NewEventService(st, rec, logger),
	}
}

// seedKeys creates n apartment keys and returns their IDs.
func (e *testEnv) seedKeys(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		k, err := e.keys.Create(context.Background(), KeyInput{
			Name:             "K-" + string(rune('A'+i)),
			SequenceNumber:   i + 1,
			KeyType:          model.KeyTypeApartment,
			RentalObjectCode: "A-101",
		}, "test")
		if err != nil {
			t.Fatalf("seed key %d: %v", i, err)
		}
		ids = append(ids, k.ID)
	}
	return ids
}

func (e *testEnv) seedCard(t *testing.T, label string) string {
	t.Helper()
	now := time.Now().UTC()
	c := &model.Card{ID: newID(), Label: label, CreatedAt: now, UpdatedAt: now}
	if err := e.store.CreateCard(context.Background(), c); err != nil {
		t.Fatalf("seed card: %v", err)
	}
	return c.ID
}
