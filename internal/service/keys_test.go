package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/keydesk/keydesk/internal/model"
)

func TestCreateKeyValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.keys.Create(ctx, KeyInput{
		Name:             "A-101-1",
		KeyType:          "WINDOW",
		RentalObjectCode: "A-101",
	}, "tester")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown key type, got %v", err)
	}

	k, err := env.keys.Create(ctx, KeyInput{
		Name:             "A-101-1",
		SequenceNumber:   1,
		KeyType:          model.KeyTypeApartment,
		RentalObjectCode: "A-101",
	}, "tester")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if k.ID == "" {
		t.Error("expected generated ID")
	}
}

func TestCreateBatchPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inputs := []KeyInput{
		{Name: "B-201-1", SequenceNumber: 1, KeyType: model.KeyTypeApartment, RentalObjectCode: "B-201"},
		{Name: "", SequenceNumber: 2, KeyType: model.KeyTypeApartment, RentalObjectCode: "B-201"},
		{Name: "B-201-3", SequenceNumber: 3, KeyType: "BALCONY", RentalObjectCode: "B-201"},
		{Name: "B-201-4", SequenceNumber: 4, KeyType: model.KeyTypeStorage, RentalObjectCode: "B-201"},
	}

	results, err := env.keys.CreateBatch(ctx, inputs, "tester")
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if len(results) != len(inputs) {
		t.Fatalf("expected %d results, got %d", len(inputs), len(results))
	}

	for i, res := range results {
		if res.Index != i {
			t.Errorf("result %d has index %d", i, res.Index)
		}
	}
	if results[0].Error != "" || results[0].Key == nil {
		t.Errorf("unit 0 should succeed: %+v", results[0])
	}
	if results[1].Error == "" {
		t.Error("unit 1 (empty name) should fail")
	}
	if results[2].Error == "" {
		t.Error("unit 2 (bad key type) should fail")
	}
	if results[3].Error != "" || results[3].Key == nil {
		t.Errorf("unit 3 should succeed: %+v", results[3])
	}

	// Only the two valid units are stored.
	_, total, err := env.keys.List(ctx, pageOf(1, 50))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 stored keys, got %d", total)
	}
}

func TestCreateBatchEmptyRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.keys.CreateBatch(context.Background(), nil, "tester")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for empty batch, got %v", err)
	}
}

func TestUpdateKeyMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.seedKeys(t, 1)

	k, err := env.keys.Update(ctx, ids[0], KeyInput{
		Name:             "K-A",
		SequenceNumber:   1,
		KeyType:          model.KeyTypeApartment,
		RentalObjectCode: "A-101",
		Disposed:         true,
	}, "tester")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !k.Disposed {
		t.Error("expected disposed flag set")
	}

	_, err = env.keys.Update(ctx, "missing", KeyInput{
		Name:             "X",
		KeyType:          model.KeyTypeApartment,
		RentalObjectCode: "X",
	}, "tester")
	var nerr *NotFoundError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSearchKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := env.seedKeys(t, 3)

	// Dispose one key; disposed filter should single it out.
	if _, err := env.keys.Update(ctx, ids[0], KeyInput{
		Name:             "K-A",
		SequenceNumber:   1,
		KeyType:          model.KeyTypeApartment,
		RentalObjectCode: "A-101",
		Disposed:         true,
	}, "tester"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	keys, total, err := env.keys.Search(ctx, url.Values{"disposed": {"true"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 1 || len(keys) != 1 || keys[0].ID != ids[0] {
		t.Fatalf("unexpected result: total=%d keys=%+v", total, keys)
	}

	_, total, err = env.keys.Search(ctx, url.Values{"rentalObject": {"A-101"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 keys for rental object, got %d", total)
	}
}
