package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/event"
	"github.com/sinaabedii/arian-etc-sub001/internal/remote"
	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
	"github.com/sinaabedii/arian-etc-sub001/internal/store"
	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
)

// WishlistCodec persists wishlist rows.
var WishlistCodec = repository.Codec[domain.WishlistItem]{
	Key:     repository.KeyWishlist,
	Version: 1,
	Migrations: map[int]repository.Migration{
		0: repository.Identity,
	},
}

// WishlistService is the wishlist store of one sync session.
type WishlistService struct {
	*syncCore

	store       *store.Store[domain.WishlistState, domain.WishlistAction]
	kv          repository.KVStore
	api         remote.WishlistAPI
	events      EventPublisher
	unsubscribe func()
}

// NewWishlistService creates an empty wishlist store.
func NewWishlistService(kv repository.KVStore, api remote.WishlistAPI, events EventPublisher, logger *slog.Logger, opts Options) *WishlistService {
	if events == nil {
		events = NoopPublisher{}
	}
	s := &WishlistService{
		syncCore: newSyncCore(event.ResourceWishlist, opts, logger),
		store:    store.New(domain.EmptyWishlist(), domain.ReduceWishlist),
		kv:       kv,
		api:      api,
		events:   events,
	}
	s.unsubscribe = s.store.Subscribe(s.persist)
	return s
}

func (s *WishlistService) persist(state domain.WishlistState) {
	ctx, cancel := s.persistContext()
	defer cancel()
	if err := WishlistCodec.Save(ctx, s.kv, state.Items); err != nil {
		s.logger.Warn("failed to persist wishlist", slog.String("error", err.Error()))
	}
}

// Hydrate loads the persisted wishlist, discarding unreadable data.
func (s *WishlistService) Hydrate(ctx context.Context) {
	items, err := WishlistCodec.Load(ctx, s.kv)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, repository.ErrCorrupt) || errors.Is(err, repository.ErrIncompatible) {
			level = slog.LevelWarn
		}
		s.log(ctx).Log(ctx, level, "discarding persisted wishlist", slog.String("error", err.Error()))
		return
	}
	if items == nil {
		return
	}
	_, _, _ = s.store.Dispatch(domain.LoadWishlist{Items: items})
}

// Mount hydrates from storage and then refreshes from the backend.
func (s *WishlistService) Mount(ctx context.Context) {
	s.Hydrate(ctx)
	_ = s.RefreshFromServer(ctx)
}

// State returns the current wishlist.
func (s *WishlistService) State() domain.WishlistState {
	return s.store.State()
}

// Subscribe registers fn for every wishlist change.
func (s *WishlistService) Subscribe(fn func(domain.WishlistState)) (unsubscribe func()) {
	return s.store.Subscribe(fn)
}

// IsInWishlist reports whether any row holds the product.
func (s *WishlistService) IsInWishlist(productID int64) bool {
	return s.store.State().ContainsProduct(productID)
}

// FindByProductID returns the row holding the product, so callers can
// remove it by row id.
func (s *WishlistService) FindByProductID(productID int64) (domain.WishlistItem, bool) {
	return s.store.State().FindByProductID(productID)
}

// AddToWishlist adds item locally. A row with the same id is left as is
// and added reports false.
func (s *WishlistService) AddToWishlist(item domain.WishlistItem) (state domain.WishlistState, added bool, err error) {
	if item.ID == "" {
		return s.State(), false, apperrors.InvalidInput("wishlist row id is required")
	}
	prev, next, err := s.store.Dispatch(domain.AddToWishlist{Item: item})
	if err != nil {
		return next, false, err
	}
	return next, !prev.Contains(item.ID), nil
}

// AddFromAPIItem decodes a backend wishlist row and adds it.
func (s *WishlistService) AddFromAPIItem(raw json.RawMessage) (domain.WishlistItem, domain.WishlistState, error) {
	item, err := remote.DecodeWishlistItem(raw)
	if err != nil {
		return domain.WishlistItem{}, s.State(), err
	}
	state, _, err := s.AddToWishlist(item)
	return item, state, err
}

// AddProduct adds the product on the backend and then adds the returned
// row locally. It needs a signed-in visitor since the row id comes from
// the backend.
func (s *WishlistService) AddProduct(ctx context.Context, productID int64) (domain.WishlistItem, domain.WishlistState, error) {
	if productID <= 0 {
		return domain.WishlistItem{}, s.State(), apperrors.InvalidInput("product id must be positive")
	}

	gen := s.generation()
	callCtx, cancel := s.callContext(ctx)
	raw, err := s.api.AddWishlistItem(callCtx, productID)
	cancel()
	if err != nil {
		if !unauthenticated(err) {
			syncRemoteFailures.WithLabelValues(s.resource, "add").Inc()
		}
		return domain.WishlistItem{}, s.State(), fmt.Errorf("add to wishlist: %w", err)
	}

	item, err := remote.DecodeWishlistItem(raw)
	if err != nil {
		s.log(ctx).WarnContext(ctx, "backend returned undecodable wishlist row", slog.String("error", err.Error()))
		return domain.WishlistItem{}, s.State(), err
	}

	var (
		state    domain.WishlistState
		applyErr error
	)
	if !s.applyIfCurrent(ctx, gen, "add", func() {
		state, _, applyErr = s.AddToWishlist(item)
	}) {
		return item, s.State(), nil
	}
	return item, state, applyErr
}

// RemoveFromWishlist removes the row locally and then on the backend. A
// remote failure is logged and, unless the policy says otherwise, the
// local removal stands.
func (s *WishlistService) RemoveFromWishlist(ctx context.Context, id string) (domain.WishlistState, Outcome, error) {
	gen := s.generation()
	prev, next, err := s.store.Dispatch(domain.RemoveFromWishlist{ID: id})
	if err != nil {
		return next, OutcomeLocal, err
	}
	if !prev.Contains(id) {
		return next, OutcomeLocal, nil
	}

	callCtx, cancel := s.callContext(ctx)
	err = s.api.RemoveWishlistItem(callCtx, id)
	cancel()

	switch {
	case err == nil:
		return s.State(), OutcomeSynced, nil
	case unauthenticated(err):
		return s.State(), OutcomeLocal, nil
	case s.generation() != gen:
		syncStaleDropped.WithLabelValues(s.resource).Inc()
		return s.State(), OutcomeStale, nil
	}

	syncRemoteFailures.WithLabelValues(s.resource, "remove").Inc()
	log := s.log(ctx).With(slog.String("wishlist_id", id), slog.String("error", err.Error()))

	if !s.policy.RollbackOnFailure {
		log.WarnContext(ctx, "remote wishlist removal failed, keeping local removal")
		return s.State(), OutcomeKept, nil
	}

	if !s.applyIfCurrent(ctx, gen, "remove", func() {
		_, _, _ = s.store.Dispatch(domain.LoadWishlist{Items: prev.Items})
	}) {
		return s.State(), OutcomeStale, nil
	}
	syncRollbacks.WithLabelValues(s.resource, "remove").Inc()
	log.WarnContext(ctx, "remote wishlist removal failed, rolled back")
	return s.State(), OutcomeRolledBack, nil
}

// ClearWishlist empties the wishlist locally and drops in-flight results.
func (s *WishlistService) ClearWishlist() (domain.WishlistState, error) {
	var (
		next domain.WishlistState
		err  error
	)
	s.reset(func() {
		_, next, err = s.store.Dispatch(domain.ClearWishlist{})
	})
	return next, err
}

// RefreshFromServer loads the first page of the backend wishlist and, under
// the default policy, replaces local state even when it is empty.
func (s *WishlistService) RefreshFromServer(ctx context.Context) error {
	gen := s.generation()
	s.beginRefresh()

	callCtx, cancel := s.callContext(ctx)
	items, err := s.api.GetWishlist(callCtx, 1, s.pageSize)
	cancel()

	if err != nil {
		if unauthenticated(err) {
			syncRefreshes.WithLabelValues(s.resource, "unauthenticated").Inc()
			s.endRefresh(nil)
			return nil
		}
		if s.generation() != gen {
			syncRefreshes.WithLabelValues(s.resource, "stale").Inc()
			s.endRefresh(nil)
			return nil
		}
		syncRefreshes.WithLabelValues(s.resource, "failed").Inc()
		s.log(ctx).WarnContext(ctx, "wishlist refresh failed", slog.String("error", err.Error()))
		err = fmt.Errorf("refresh wishlist: %w", err)
		s.endRefresh(err)
		return err
	}

	if len(items) == 0 && !s.policy.OverwriteOnEmptyRemote {
		syncRefreshes.WithLabelValues(s.resource, "empty_ignored").Inc()
		s.endRefresh(nil)
		return nil
	}

	var (
		next        domain.WishlistState
		dispatchErr error
	)
	applied := s.applyIfCurrent(ctx, gen, "refresh", func() {
		_, next, dispatchErr = s.store.Dispatch(domain.LoadWishlist{Items: items})
	})
	switch {
	case !applied:
		syncRefreshes.WithLabelValues(s.resource, "stale").Inc()
		s.endRefresh(nil)
		return nil
	case dispatchErr != nil:
		s.endRefresh(nil)
		return dispatchErr
	}

	syncRefreshes.WithLabelValues(s.resource, "loaded").Inc()
	s.endRefresh(nil)

	if perr := s.events.PublishWishlistReconciled(ctx, s.sessionID, next); perr != nil {
		s.log(ctx).WarnContext(ctx, "failed to publish wishlist reconciliation", slog.String("error", perr.Error()))
	}
	return nil
}

// Close drops in-flight results, cancels remote calls and stops the store.
func (s *WishlistService) Close() {
	s.shutdown()
	s.unsubscribe()
	s.store.Close()
}
