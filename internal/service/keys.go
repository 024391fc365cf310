package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/keydesk/keydesk/internal/audit"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/query"
	"github.com/keydesk/keydesk/internal/store"
)

// KeyInput is the write payload for one catalogue key.
type KeyInput struct {
	Name             string        `json:"name" validate:"required"`
	SequenceNumber   int           `json:"sequenceNumber" validate:"gte=0"`
	KeyType          model.KeyType `json:"keyType" validate:"required"`
	RentalObjectCode string        `json:"rentalObjectCode" validate:"required"`
	KeySystemID      *string       `json:"keySystemId"`
	Disposed         bool          `json:"disposed"`
}

// BatchKeyResult reports the outcome of one unit in a batch creation. A
// batch never drops failures silently: every input produces either a key
// or an error message, in input order.
type BatchKeyResult struct {
	Index int        `json:"index"`
	Key   *model.Key `json:"key,omitempty"`
	Error string     `json:"error,omitempty"`
}

// KeyService manages the key catalogue.
type KeyService struct {
	store *store.Store
	audit *audit.Recorder
	log   *slog.Logger
	res   *query.Resource
}

func NewKeyService(st *store.Store, rec *audit.Recorder, log *slog.Logger) *KeyService {
	return &KeyService{store: st, audit: rec, log: log, res: query.Keys()}
}

func (s *KeyService) List(ctx context.Context, page query.Page) ([]model.Key, int, error) {
	return s.store.ListKeys(ctx, page.Limit, page.Offset())
}

func (s *KeyService) Search(ctx context.Context, params url.Values) ([]model.Key, int, error) {
	c, err := compileSearch(params, s.res, s.store.Placeholder())
	if err != nil {
		return nil, 0, err
	}
	return s.store.SearchKeys(ctx, c)
}

func (s *KeyService) Get(ctx context.Context, id string) (*model.Key, error) {
	k, err := s.store.GetKey(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "key", id)
	}
	return k, nil
}

func (s *KeyService) Create(ctx context.Context, in KeyInput, actor string) (*model.Key, error) {
	k, err := s.createOne(ctx, in)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, "key.create", "key", k.ID, k.Name)
	return k, nil
}

// CreateBatch creates many keys in one call and reports a per-unit
// outcome for each. Units are independent: a failed unit does not roll
// back the ones that succeeded.
func (s *KeyService) CreateBatch(ctx context.Context, inputs []KeyInput, actor string) ([]BatchKeyResult, error) {
	if len(inputs) == 0 {
		return nil, validationf("empty batch")
	}
	results := make([]BatchKeyResult, len(inputs))
	created := 0
	for i, in := range inputs {
		results[i].Index = i
		k, err := s.createOne(ctx, in)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].Key = k
		created++
		s.audit.Record(ctx, actor, "key.create", "key", k.ID, k.Name)
	}
	s.log.Info("key batch processed", "requested", len(inputs), "created", created)
	return results, nil
}

func (s *KeyService) Update(ctx context.Context, id string, in KeyInput, actor string) (*model.Key, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	existing, err := s.store.GetKey(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "key", id)
	}
	k := &model.Key{
		ID:               id,
		Name:             in.Name,
		SequenceNumber:   in.SequenceNumber,
		KeyType:          in.KeyType,
		RentalObjectCode: in.RentalObjectCode,
		KeySystemID:      in.KeySystemID,
		Disposed:         in.Disposed,
		CreatedAt:        existing.CreatedAt,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := s.store.UpdateKey(ctx, k); err != nil {
		return nil, mapStoreErr(err, "key", id)
	}
	s.audit.Record(ctx, actor, "key.update", "key", id, k.Name)
	return k, nil
}

func (s *KeyService) createOne(ctx context.Context, in KeyInput) (*model.Key, error) {
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	k := &model.Key{
		ID:               newID(),
		Name:             in.Name,
		SequenceNumber:   in.SequenceNumber,
		KeyType:          in.KeyType,
		RentalObjectCode: in.RentalObjectCode,
		KeySystemID:      in.KeySystemID,
		Disposed:         in.Disposed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateKey(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

func (s *KeyService) checkInput(in KeyInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	if !model.ValidKeyType(in.KeyType) {
		return validationf("unknown key type %q", in.KeyType)
	}
	return nil
}
