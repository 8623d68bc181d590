package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/event"
	"github.com/sinaabedii/arian-etc-sub001/internal/remote"
	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
	"github.com/sinaabedii/arian-etc-sub001/internal/store"
	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
)

// MaxQuantityPerItem bounds a single cart line.
const MaxQuantityPerItem = 100

// CartCodec persists cart lines. Version 0 is the bare-array format, which
// has the same line shape.
var CartCodec = repository.Codec[domain.CartItem]{
	Key:     repository.KeyCart,
	Version: 1,
	Migrations: map[int]repository.Migration{
		0: repository.Identity,
	},
}

// CartService is the cart store of one sync session: a reducer store
// mirrored to the KV store and reconciled with the backend cart.
type CartService struct {
	*syncCore

	store       *store.Store[domain.CartState, domain.CartAction]
	kv          repository.KVStore
	api         remote.CartAPI
	events      EventPublisher
	unsubscribe func()
}

// NewCartService creates an empty cart store. Call Mount (or Hydrate) to
// load the previous session.
func NewCartService(kv repository.KVStore, api remote.CartAPI, events EventPublisher, logger *slog.Logger, opts Options) *CartService {
	if events == nil {
		events = NoopPublisher{}
	}
	s := &CartService{
		syncCore: newSyncCore(event.ResourceCart, opts, logger),
		store:    store.New(domain.EmptyCart(), domain.ReduceCart),
		kv:       kv,
		api:      api,
		events:   events,
	}
	s.unsubscribe = s.store.Subscribe(s.persist)
	return s
}

// persist mirrors every state change to the KV store. Failures are logged;
// the in-memory state stays authoritative.
func (s *CartService) persist(state domain.CartState) {
	ctx, cancel := s.persistContext()
	defer cancel()
	if err := CartCodec.Save(ctx, s.kv, state.Items); err != nil {
		s.logger.Warn("failed to persist cart", slog.String("error", err.Error()))
	}
}

// Hydrate loads the persisted cart. Unreadable or incompatible data is
// logged, discarded and treated as an empty cart.
func (s *CartService) Hydrate(ctx context.Context) {
	items, err := CartCodec.Load(ctx, s.kv)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, repository.ErrCorrupt) || errors.Is(err, repository.ErrIncompatible) {
			level = slog.LevelWarn
		}
		s.log(ctx).Log(ctx, level, "discarding persisted cart", slog.String("error", err.Error()))
		return
	}
	if items == nil {
		return
	}
	if _, _, err := s.store.Dispatch(domain.LoadCart{Items: items}); err != nil {
		s.log(ctx).WarnContext(ctx, "hydrate on closed cart", slog.String("error", err.Error()))
	}
}

// Mount hydrates from storage and then refreshes from the backend. A
// refresh failure is recorded in Error and not returned.
func (s *CartService) Mount(ctx context.Context) {
	s.Hydrate(ctx)
	_ = s.RefreshFromServer(ctx)
}

// State returns the current cart.
func (s *CartService) State() domain.CartState {
	return s.store.State()
}

// Subscribe registers fn for every cart change.
func (s *CartService) Subscribe(fn func(domain.CartState)) (unsubscribe func()) {
	return s.store.Subscribe(fn)
}

// IsInCart reports whether the product has a line in the cart.
func (s *CartService) IsInCart(productID string) bool {
	return s.store.State().Contains(productID)
}

// GetItemQuantity returns the quantity of the product's line, or 0.
func (s *CartService) GetItemQuantity(productID string) int {
	return s.store.State().Quantity(productID)
}

// AddItem adds one unit of item locally. It never calls the backend.
func (s *CartService) AddItem(item domain.CartItem) (domain.CartState, error) {
	if item.ID == "" {
		return s.State(), apperrors.InvalidInput("item id is required")
	}
	_, next, err := s.store.Dispatch(domain.AddItem{Item: item})
	return next, err
}

// AddToCart adds quantity units of item on the backend, mirrors the change
// locally and refreshes. Signed-out visitors get the local change only.
func (s *CartService) AddToCart(ctx context.Context, item domain.CartItem, quantity int) (domain.CartState, Outcome, error) {
	productID, err := strconv.ParseInt(item.ID, 10, 64)
	if err != nil || productID <= 0 {
		return s.State(), OutcomeLocal, apperrors.InvalidInput(fmt.Sprintf("item id %q is not a product id", item.ID))
	}
	if quantity < 1 || quantity > MaxQuantityPerItem {
		return s.State(), OutcomeLocal, apperrors.InvalidInput(fmt.Sprintf("quantity must be between 1 and %d", MaxQuantityPerItem))
	}

	gen := s.generation()
	callCtx, cancel := s.callContext(ctx)
	err = s.api.AddCartItem(callCtx, productID, quantity)
	cancel()

	outcome := OutcomeSynced
	switch {
	case err == nil:
	case unauthenticated(err):
		outcome = OutcomeLocal
	case s.generation() != gen:
		syncStaleDropped.WithLabelValues(s.resource).Inc()
		return s.State(), OutcomeStale, nil
	default:
		syncRemoteFailures.WithLabelValues(s.resource, "add").Inc()
		s.log(ctx).WarnContext(ctx, "remote add to cart failed",
			slog.String("product_id", item.ID),
			slog.String("error", err.Error()),
		)
		return s.State(), OutcomeLocal, fmt.Errorf("add to cart: %w", err)
	}

	var applyErr error
	applied := s.applyIfCurrent(ctx, gen, "add", func() {
		applyErr = s.addUnits(item, quantity)
	})
	if !applied {
		return s.State(), OutcomeStale, nil
	}
	if applyErr != nil {
		return s.State(), outcome, applyErr
	}

	if outcome == OutcomeSynced {
		_ = s.RefreshFromServer(ctx)
	}
	return s.State(), outcome, nil
}

// addUnits applies quantity units of item locally.
func (s *CartService) addUnits(item domain.CartItem, quantity int) error {
	current := s.store.State().Quantity(item.ID)
	if current == 0 {
		if _, _, err := s.store.Dispatch(domain.AddItem{Item: item}); err != nil {
			return err
		}
		current = 1
		quantity--
	}
	if quantity == 0 {
		return nil
	}
	_, _, err := s.store.Dispatch(domain.UpdateQuantity{ID: item.ID, Quantity: current + quantity})
	return err
}

// RemoveItem removes the product's line locally and then on the backend.
// A remote failure rolls back when the policy says so; success refreshes.
func (s *CartService) RemoveItem(ctx context.Context, productID string) (domain.CartState, Outcome, error) {
	return s.mutate(ctx, "remove", productID, domain.RemoveItem{ID: productID}, func(ctx context.Context, rowID int64) error {
		return s.api.RemoveCartItem(ctx, rowID)
	})
}

// UpdateQuantity sets the product's quantity locally and then on the
// backend. A quantity of zero or less removes the line on both sides.
func (s *CartService) UpdateQuantity(ctx context.Context, productID string, quantity int) (domain.CartState, Outcome, error) {
	if quantity > MaxQuantityPerItem {
		return s.State(), OutcomeLocal, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	return s.mutate(ctx, "update_quantity", productID, domain.UpdateQuantity{ID: productID, Quantity: quantity}, func(ctx context.Context, rowID int64) error {
		if quantity <= 0 {
			return s.api.RemoveCartItem(ctx, rowID)
		}
		return s.api.UpdateCartItem(ctx, rowID, quantity)
	})
}

// mutate applies action optimistically and pairs it with call on the line's
// backend row.
func (s *CartService) mutate(ctx context.Context, op, productID string, action domain.CartAction, call func(context.Context, int64) error) (domain.CartState, Outcome, error) {
	gen := s.generation()
	prev, next, err := s.store.Dispatch(action)
	if err != nil {
		return next, OutcomeLocal, err
	}

	line, ok := prev.Item(productID)
	if !ok || !line.HasRemoteID() {
		return next, OutcomeLocal, nil
	}

	callCtx, cancel := s.callContext(ctx)
	err = call(callCtx, *line.CartItemID)
	cancel()

	switch {
	case err == nil:
		if s.generation() != gen {
			syncStaleDropped.WithLabelValues(s.resource).Inc()
			return s.State(), OutcomeStale, nil
		}
		_ = s.RefreshFromServer(ctx)
		return s.State(), OutcomeSynced, nil

	case unauthenticated(err):
		s.log(ctx).DebugContext(ctx, "signed out, keeping local cart change", slog.String("operation", op))
		return s.State(), OutcomeLocal, nil
	}

	syncRemoteFailures.WithLabelValues(s.resource, op).Inc()
	log := s.log(ctx).With(
		slog.String("operation", op),
		slog.String("product_id", productID),
		slog.String("error", err.Error()),
	)

	if !s.policy.RollbackOnFailure {
		if s.generation() != gen {
			syncStaleDropped.WithLabelValues(s.resource).Inc()
			return s.State(), OutcomeStale, nil
		}
		log.WarnContext(ctx, "remote cart change failed, keeping local change")
		return s.State(), OutcomeKept, nil
	}

	applied := s.applyIfCurrent(ctx, gen, op, func() {
		_, _, _ = s.store.Dispatch(domain.LoadCart{Items: prev.Items})
	})
	if !applied {
		return s.State(), OutcomeStale, nil
	}

	syncRollbacks.WithLabelValues(s.resource, op).Inc()
	log.WarnContext(ctx, "remote cart change failed, rolled back")

	state := s.State()
	if perr := s.events.PublishCartRolledBack(ctx, s.sessionID, event.CartRolledBackData{
		Operation: op,
		ProductID: productID,
		Reason:    err.Error(),
		ItemCount: state.ItemCount,
	}); perr != nil {
		s.log(ctx).WarnContext(ctx, "failed to publish cart rollback", slog.String("error", perr.Error()))
	}
	return state, OutcomeRolledBack, nil
}

// ClearCart empties the cart locally and drops the results of any calls
// still in flight.
func (s *CartService) ClearCart() (domain.CartState, error) {
	var (
		next domain.CartState
		err  error
	)
	s.reset(func() {
		_, next, err = s.store.Dispatch(domain.ClearCart{})
	})
	return next, err
}

// RefreshFromServer loads the first page of the backend cart. An empty
// listing only replaces local state when the policy allows it. Signed-out
// visitors keep their local cart and get no error.
func (s *CartService) RefreshFromServer(ctx context.Context) error {
	gen := s.generation()
	s.beginRefresh()

	callCtx, cancel := s.callContext(ctx)
	items, err := s.api.GetCart(callCtx, 1, s.pageSize)
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
		s.log(ctx).WarnContext(ctx, "cart refresh failed", slog.String("error", err.Error()))
		err = fmt.Errorf("refresh cart: %w", err)
		s.endRefresh(err)
		return err
	}

	if len(items) == 0 && !s.policy.OverwriteOnEmptyRemote {
		syncRefreshes.WithLabelValues(s.resource, "empty_ignored").Inc()
		s.endRefresh(nil)
		return nil
	}

	var (
		next        domain.CartState
		dispatchErr error
	)
	applied := s.applyIfCurrent(ctx, gen, "refresh", func() {
		_, next, dispatchErr = s.store.Dispatch(domain.LoadCart{Items: items})
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

	if perr := s.events.PublishCartReconciled(ctx, s.sessionID, next); perr != nil {
		s.log(ctx).WarnContext(ctx, "failed to publish cart reconciliation", slog.String("error", perr.Error()))
	}
	return nil
}

// Close drops in-flight results, cancels remote calls and stops the store.
// The last state stays readable and persisted.
func (s *CartService) Close() {
	s.shutdown()
	s.unsubscribe()
	s.store.Close()
}
