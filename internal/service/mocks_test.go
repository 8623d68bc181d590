package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/event"
)

// --- Mock backend ---

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) GetCart(ctx context.Context, page, pageSize int) ([]domain.CartItem, error) {
	args := m.Called(ctx, page, pageSize)
	items, _ := args.Get(0).([]domain.CartItem)
	return items, args.Error(1)
}

func (m *mockAPI) AddCartItem(ctx context.Context, productID int64, quantity int) error {
	return m.Called(ctx, productID, quantity).Error(0)
}

func (m *mockAPI) UpdateCartItem(ctx context.Context, cartItemID int64, quantity int) error {
	return m.Called(ctx, cartItemID, quantity).Error(0)
}

func (m *mockAPI) RemoveCartItem(ctx context.Context, cartItemID int64) error {
	return m.Called(ctx, cartItemID).Error(0)
}

func (m *mockAPI) GetWishlist(ctx context.Context, page, pageSize int) ([]domain.WishlistItem, error) {
	args := m.Called(ctx, page, pageSize)
	items, _ := args.Get(0).([]domain.WishlistItem)
	return items, args.Error(1)
}

func (m *mockAPI) AddWishlistItem(ctx context.Context, productID int64) (json.RawMessage, error) {
	args := m.Called(ctx, productID)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

func (m *mockAPI) RemoveWishlistItem(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Recording publisher ---

type recordingPublisher struct {
	mu                 sync.Mutex
	rollbacks          []event.CartRolledBackData
	cartReconciled     []domain.CartState
	wishlistReconciled []domain.WishlistState
}

func (p *recordingPublisher) PublishCartRolledBack(_ context.Context, _ string, data event.CartRolledBackData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollbacks = append(p.rollbacks, data)
	return nil
}

func (p *recordingPublisher) PublishCartReconciled(_ context.Context, _ string, state domain.CartState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cartReconciled = append(p.cartReconciled, state)
	return nil
}

func (p *recordingPublisher) PublishWishlistReconciled(_ context.Context, _ string, state domain.WishlistState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wishlistReconciled = append(p.wishlistReconciled, state)
	return nil
}

func (p *recordingPublisher) rollbackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rollbacks)
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rowID(id int64) *int64 { return &id }

func headphones() domain.CartItem {
	return domain.CartItem{
		ID:       "7",
		Name:     "Headphones",
		Price:    6500000,
		Image:    "/media/headphones.jpg",
		Category: "Electronics",
		Slug:     "headphones",
	}
}
