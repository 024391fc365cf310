package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/keydesk/keydesk/internal/audit"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/query"
	"github.com/keydesk/keydesk/internal/store"
)

// BundleInput is the write payload for creating or updating a bundle.
type BundleInput struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	KeyIDs      []string `json:"keyIds" validate:"omitempty,dive,required"`
}

// BundleService manages named key groupings and the aggregated per-key
// loan status view.
type BundleService struct {
	store *store.Store
	audit *audit.Recorder
	log   *slog.Logger
	res   *query.Resource
}

func NewBundleService(st *store.Store, rec *audit.Recorder, log *slog.Logger) *BundleService {
	return &BundleService{store: st, audit: rec, log: log, res: query.Bundles()}
}

func (s *BundleService) List(ctx context.Context, page query.Page) ([]model.KeyBundle, int, error) {
	return s.store.ListBundles(ctx, page.Limit, page.Offset())
}

func (s *BundleService) Search(ctx context.Context, params url.Values) ([]model.KeyBundle, int, error) {
	c, err := compileSearch(params, s.res, s.store.Placeholder())
	if err != nil {
		return nil, 0, err
	}
	return s.store.SearchBundles(ctx, c)
}

func (s *BundleService) Get(ctx context.Context, id string) (*model.KeyBundle, error) {
	b, err := s.store.GetBundle(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "bundle", id)
	}
	return b, nil
}

func (s *BundleService) Create(ctx context.Context, in BundleInput, actor string) (*model.KeyBundle, error) {
	if err := s.checkInput(ctx, in); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	b := &model.KeyBundle{
		ID:          newID(),
		Name:        in.Name,
		Description: in.Description,
		KeyIDs:      in.KeyIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateBundle(ctx, b); err != nil {
		return nil, mapStoreErr(err, "bundle", b.ID)
	}
	s.audit.Record(ctx, actor, "bundle.create", "bundle", b.ID, b.Name)
	return b, nil
}

func (s *BundleService) Update(ctx context.Context, id string, in BundleInput, actor string) (*model.KeyBundle, error) {
	if err := s.checkInput(ctx, in); err != nil {
		return nil, err
	}
	existing, err := s.store.GetBundle(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "bundle", id)
	}
	b := &model.KeyBundle{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		KeyIDs:      in.KeyIDs,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.store.UpdateBundle(ctx, b); err != nil {
		return nil, mapStoreErr(err, "bundle", id)
	}
	s.audit.Record(ctx, actor, "bundle.update", "bundle", id, b.Name)
	return b, nil
}

// Delete removes a bundle. Bundles are groupings only, so deletion never
// touches keys or loans and needs no guard beyond existence.
func (s *BundleService) Delete(ctx context.Context, id, actor string) error {
	if err := s.store.DeleteBundle(ctx, id); err != nil {
		return mapStoreErr(err, "bundle", id)
	}
	s.audit.Record(ctx, actor, "bundle.delete", "bundle", id, "")
	return nil
}

// Details builds the aggregated view: every member key with the loan that
// currently holds it (nil when free), and optionally the full loan and
// event history per key.
func (s *BundleService) Details(ctx context.Context, id string, includeLoans, includeEvents bool) (*model.BundleDetails, error) {
	b, err := s.store.GetBundle(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "bundle", id)
	}

	keys, err := s.store.KeysByIDs(ctx, b.KeyIDs)
	if err != nil {
		return nil, err
	}
	holders, err := s.store.OutstandingLoansForKeys(ctx, b.KeyIDs)
	if err != nil {
		return nil, err
	}

	var events map[string][]model.KeyEvent
	if includeEvents {
		events, err = s.store.EventsForKeys(ctx, b.KeyIDs)
		if err != nil {
			return nil, err
		}
	}

	details := &model.BundleDetails{
		Bundle: *b,
		Keys:   make([]model.BundleKeyStatus, 0, len(keys)),
	}
	for i := range keys {
		status := model.BundleKeyStatus{
			Key:        keys[i],
			ActiveLoan: holders[keys[i].ID],
		}
		if includeLoans {
			loans, err := s.store.LoansForKey(ctx, keys[i].ID)
			if err != nil {
				return nil, err
			}
			status.Loans = loans
		}
		if includeEvents {
			status.Events = events[keys[i].ID]
		}
		details.Keys = append(details.Keys, status)
	}
	return details, nil
}

func (s *BundleService) checkInput(ctx context.Context, in BundleInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	if dup := duplicateID(in.KeyIDs); dup != "" {
		return validationf("duplicate key id %s", dup)
	}
	missing, err := s.store.MissingKeys(ctx, in.KeyIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return validationf("unknown key ids: %s", strings.Join(missing, ", "))
	}
	return nil
}
