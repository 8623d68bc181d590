package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/remote"
	"github.com/sinaabedii/arian-etc-sub001/internal/repository"
	"github.com/sinaabedii/arian-etc-sub001/internal/service"
	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
	"github.com/sinaabedii/arian-etc-sub001/pkg/health"
	"github.com/sinaabedii/arian-etc-sub001/pkg/httputil"
	"github.com/sinaabedii/arian-etc-sub001/pkg/middleware"
)

// ============================================================================
// Fake commerce backend
// ============================================================================

// fakeBackend keeps one cart and one wishlist shared by every session and
// rejects calls made without a token.
type fakeBackend struct {
	mu        sync.Mutex
	nextRow   int64
	cart      []domain.CartItem
	wishlist  []domain.WishlistItem
	removeErr error
}

func (b *fakeBackend) row() int64 {
	b.nextRow++
	return b.nextRow
}

type fakeAPI struct {
	b      *fakeBackend
	tokens remote.TokenSource
}

func (a *fakeAPI) authorize(ctx context.Context) error {
	tok, err := a.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if tok == "" {
		return apperrors.Unauthorized("authentication required")
	}
	return nil
}

func (a *fakeAPI) GetCart(ctx context.Context, _, _ int) ([]domain.CartItem, error) {
	if err := a.authorize(ctx); err != nil {
		return nil, err
	}
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	return append([]domain.CartItem(nil), a.b.cart...), nil
}

func (a *fakeAPI) AddCartItem(ctx context.Context, productID int64, quantity int) error {
	if err := a.authorize(ctx); err != nil {
		return err
	}
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	id := strconv.FormatInt(productID, 10)
	for i := range a.b.cart {
		if a.b.cart[i].ID == id {
			a.b.cart[i].Quantity += quantity
			return nil
		}
	}
	row := a.b.row()
	a.b.cart = append(a.b.cart, domain.CartItem{
		ID:         id,
		Name:       "Product " + id,
		Price:      10,
		Image:      remote.PlaceholderImage,
		Quantity:   quantity,
		CartItemID: &row,
	})
	return nil
}

func (a *fakeAPI) UpdateCartItem(ctx context.Context, cartItemID int64, quantity int) error {
	if err := a.authorize(ctx); err != nil {
		return err
	}
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	for i := range a.b.cart {
		if *a.b.cart[i].CartItemID == cartItemID {
			a.b.cart[i].Quantity = quantity
			return nil
		}
	}
	return apperrors.NotFound("cart item", strconv.FormatInt(cartItemID, 10))
}

func (a *fakeAPI) RemoveCartItem(ctx context.Context, cartItemID int64) error {
	if err := a.authorize(ctx); err != nil {
		return err
	}
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	if a.b.removeErr != nil {
		return a.b.removeErr
	}
	for i := range a.b.cart {
		if *a.b.cart[i].CartItemID == cartItemID {
			a.b.cart = append(a.b.cart[:i], a.b.cart[i+1:]...)
			return nil
		}
	}
	return nil
}

func (a *fakeAPI) GetWishlist(ctx context.Context, _, _ int) ([]domain.WishlistItem, error) {
	if err := a.authorize(ctx); err != nil {
		return nil, err
	}
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	return append([]domain.WishlistItem(nil), a.b.wishlist...), nil
}

func (a *fakeAPI) AddWishlistItem(ctx context.Context, productID int64) (json.RawMessage, error) {
	if err := a.authorize(ctx); err != nil {
		return nil, err
	}
	a.b.mu.Lock()
	defer a.b.mu.Unlock()
	row := a.b.row()
	a.b.wishlist = append(a.b.wishlist, domain.WishlistItem{
		ID:        strconv.FormatInt(row, 10),
		ProductID: productID,
		Name:      fmt.Sprintf("Product %d", productID),
		Price:     25,
		Image:     remote.PlaceholderImage,
	})
	return json.RawMessage(fmt.Sprintf(
		`{"id":%d,"product":%d,"product_name":"Product %d","product_price":"25.00"}`,
		row, productID, productID,
	)), nil
}

func (a *fakeAPI) RemoveWishlistItem(ctx context.Context, id string) error {
	return a.authorize(ctx)
}

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testServer struct {
	router   http.Handler
	registry *service.Registry
	backend  *fakeBackend
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLimit(t, 1000, 1000)
}

func newTestServerWithLimit(t *testing.T, rps float64, burst int) *testServer {
	t.Helper()
	b := &fakeBackend{nextRow: 100}
	reg := service.NewRegistry(service.RegistryConfig{
		CallTimeout:    time.Second,
		PageSize:       50,
		CartPolicy:     service.DefaultCartPolicy(),
		WishlistPolicy: service.DefaultWishlistPolicy(),
	}, repository.NewMemoryStore(), func(tokens remote.TokenSource) service.RemoteAPI {
		return &fakeAPI{b: b, tokens: tokens}
	}, nil, testLogger())
	t.Cleanup(reg.Shutdown)

	h := NewHandler(reg, testLogger())
	router := NewRouter(h, health.NewHandler(), NewSessionLimiter(rps, burst, time.Minute), testLogger())
	return &testServer{router: router, registry: reg, backend: b}
}

func (s *testServer) do(t *testing.T, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		switch v := body.(type) {
		case string:
			reader = bytes.NewBufferString(v)
		default:
			raw, err := json.Marshal(v)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(middleware.SessionIDHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), rec.Body.String())
	require.True(t, env.Success)
	return env.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func headphones() CartItemRequest {
	return CartItemRequest{ID: "42", Name: "Headphones", Price: 99.5, Image: "/h.png", Slug: "headphones"}
}

func signIn(t *testing.T, s *testServer, sessionID string) {
	t.Helper()
	rec := s.do(t, http.MethodPut, "/api/v1/session", sessionID, SignInRequest{
		Token: "opaque-token",
		User:  UserRequest{ID: 7, Email: "ada@example.com", FirstName: "Ada"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// ============================================================================
// Session header
// ============================================================================

func TestSessionID_GeneratedWhenMissing(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/cart", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.SessionIDHeader))
	assert.Equal(t, 1, s.registry.Len())
}

func TestSessionID_Echoed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/cart", "sess-a", nil)

	assert.Equal(t, "sess-a", rec.Header().Get(middleware.SessionIDHeader))
}

func TestSessionID_Invalid(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/cart", "bad id!", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
}

// ============================================================================
// Cart
// ============================================================================

func TestCart_EmptyOnFirstVisit(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/cart", "sess-a", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeData[CartResponse](t, rec)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.ItemCount)
	assert.False(t, cart.Loading)
	assert.Empty(t, cart.Error)
}

func TestCart_AddItemTwice(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", headphones())
	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", headphones())

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeData[CartResponse](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, 2, cart.ItemCount)
	assert.InDelta(t, 199.0, cart.Total, 0.001)
	assert.Equal(t, service.OutcomeLocal, cart.Outcome)
}

func TestCart_SessionsAreIsolated(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", headphones())
	rec := s.do(t, http.MethodGet, "/api/v1/cart", "sess-b", nil)

	assert.Empty(t, decodeData[CartResponse](t, rec).Items)
}

func TestCart_AddItemValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", map[string]any{"name": "No id"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
	assert.Contains(t, errResp.Errors, "id")
}

func TestCart_RejectsUnknownFields(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", `{"id":"1","name":"x","colour":"red"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
}

func TestCart_RejectsNonJSONContentType(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCart_GetItem(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", headphones())

	in := decodeData[CartItemStatusResponse](t, s.do(t, http.MethodGet, "/api/v1/cart/items/42", "sess-a", nil))
	out := decodeData[CartItemStatusResponse](t, s.do(t, http.MethodGet, "/api/v1/cart/items/7", "sess-a", nil))

	assert.Equal(t, CartItemStatusResponse{InCart: true, Quantity: 1}, in)
	assert.Equal(t, CartItemStatusResponse{}, out)
}

func TestCart_UpdateQuantityLocal(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", headphones())

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/42", "sess-a", map[string]int{"quantity": 5})

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeData[CartResponse](t, rec)
	assert.Equal(t, 5, cart.ItemCount)
	assert.Equal(t, service.OutcomeLocal, cart.Outcome)
}

func TestCart_UpdateQuantityZeroRemoves(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", headphones())

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/42", "sess-a", map[string]int{"quantity": 0})

	assert.Empty(t, decodeData[CartResponse](t, rec).Items)
}

func TestCart_UpdateQuantityRequiresField(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/42", "sess-a", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestCart_RemoveAndClear(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", headphones())
	other := headphones()
	other.ID = "43"
	s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", other)

	removed := decodeData[CartResponse](t, s.do(t, http.MethodDelete, "/api/v1/cart/items/42", "sess-a", nil))
	cleared := decodeData[CartResponse](t, s.do(t, http.MethodDelete, "/api/v1/cart", "sess-a", nil))

	require.Len(t, removed.Items, 1)
	assert.Equal(t, "43", removed.Items[0].ID)
	assert.Empty(t, cleared.Items)
}

func TestCart_AddToCartSignedOutStaysLocal(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items/remote", "sess-a", AddToCartRequest{Item: headphones(), Quantity: 3})

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeData[CartResponse](t, rec)
	assert.Equal(t, service.OutcomeLocal, cart.Outcome)
	assert.Equal(t, 3, cart.ItemCount)
	assert.Empty(t, s.backend.cart)
}

func TestCart_AddToCartSignedInSyncs(t *testing.T) {
	s := newTestServer(t)
	signIn(t, s, "sess-a")

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items/remote", "sess-a", AddToCartRequest{Item: headphones(), Quantity: 2})

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeData[CartResponse](t, rec)
	assert.Equal(t, service.OutcomeSynced, cart.Outcome)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	require.NotNil(t, cart.Items[0].CartItemID)
}

func TestCart_AddToCartQuantityBounds(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items/remote", "sess-a", AddToCartRequest{Item: headphones(), Quantity: 101})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Errors, "quantity")
}

func TestCart_RemoveFailureRollsBack(t *testing.T) {
	s := newTestServer(t)
	signIn(t, s, "sess-a")
	s.do(t, http.MethodPost, "/api/v1/cart/items/remote", "sess-a", AddToCartRequest{Item: headphones(), Quantity: 2})
	s.backend.mu.Lock()
	s.backend.removeErr = apperrors.Remote("commerce-api: cannot remove", nil)
	s.backend.mu.Unlock()

	rec := s.do(t, http.MethodDelete, "/api/v1/cart/items/42", "sess-a", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	cart := decodeData[CartResponse](t, rec)
	assert.Equal(t, service.OutcomeRolledBack, cart.Outcome)
	assert.Equal(t, 2, cart.ItemCount)
}

func TestCart_RefreshSignedInReplacesLocal(t *testing.T) {
	s := newTestServer(t)
	signIn(t, s, "sess-a")
	row := int64(900)
	s.backend.mu.Lock()
	s.backend.cart = []domain.CartItem{{ID: "5", Name: "Lamp", Price: 12, Quantity: 3, CartItemID: &row}}
	s.backend.mu.Unlock()

	rec := s.do(t, http.MethodPost, "/api/v1/cart/refresh", "sess-a", nil)

	cart := decodeData[CartResponse](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "5", cart.Items[0].ID)
	assert.InDelta(t, 36.0, cart.Total, 0.001)
}

// ============================================================================
// Wishlist
// ============================================================================

func saved(id string, productID int64) WishlistItemRequest {
	return WishlistItemRequest{ID: id, ProductID: productID, Name: "Scarf", Price: 20}
}

func TestWishlist_AddReportsDuplicates(t *testing.T) {
	s := newTestServer(t)

	first := decodeData[WishlistResponse](t, s.do(t, http.MethodPost, "/api/v1/wishlist/items", "sess-a", saved("1", 10)))
	second := decodeData[WishlistResponse](t, s.do(t, http.MethodPost, "/api/v1/wishlist/items", "sess-a", saved("1", 10)))

	require.NotNil(t, first.Added)
	require.NotNil(t, second.Added)
	assert.True(t, *first.Added)
	assert.False(t, *second.Added)
	assert.Len(t, second.Items, 1)
}

func TestWishlist_AddFromAPIItem(t *testing.T) {
	s := newTestServer(t)
	body := `{"id":11,"product":{"id":3,"name":"Mug","final_price":"8.50","images":[{"image":"/mug.png"}],"category":{"name":"Kitchen"}}}`

	rec := s.do(t, http.MethodPost, "/api/v1/wishlist/items/api", "sess-a", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	wl := decodeData[WishlistResponse](t, rec)
	require.NotNil(t, wl.Item)
	assert.Equal(t, "11", wl.Item.ID)
	assert.Equal(t, int64(3), wl.Item.ProductID)
	assert.InDelta(t, 8.5, wl.Item.Price, 0.001)
	assert.Equal(t, "/mug.png", wl.Item.Image)
	assert.Equal(t, "Kitchen", wl.Item.Category)
}

func TestWishlist_AddFromAPIItemUndecodable(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/wishlist/items/api", "sess-a", `{"id":11}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "DECODE_ERROR", decodeError(t, rec).Code)
}

func TestWishlist_AddProductRequiresSignIn(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/wishlist/products/3", "sess-a", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWishlist_AddProductAndLookup(t *testing.T) {
	s := newTestServer(t)
	signIn(t, s, "sess-a")

	rec := s.do(t, http.MethodPost, "/api/v1/wishlist/products/3", "sess-a", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	added := decodeData[WishlistResponse](t, rec)
	require.NotNil(t, added.Item)

	found := decodeData[WishlistProductResponse](t, s.do(t, http.MethodGet, "/api/v1/wishlist/products/3", "sess-a", nil))
	missing := decodeData[WishlistProductResponse](t, s.do(t, http.MethodGet, "/api/v1/wishlist/products/4", "sess-a", nil))

	assert.True(t, found.InWishlist)
	assert.Equal(t, added.Item.ID, found.Item.ID)
	assert.False(t, missing.InWishlist)
}

func TestWishlist_BadProductID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/wishlist/products/abc", "sess-a", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWishlist_RemoveAndClear(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/wishlist/items", "sess-a", saved("1", 10))
	s.do(t, http.MethodPost, "/api/v1/wishlist/items", "sess-a", saved("2", 11))

	removed := decodeData[WishlistResponse](t, s.do(t, http.MethodDelete, "/api/v1/wishlist/items/1", "sess-a", nil))
	cleared := decodeData[WishlistResponse](t, s.do(t, http.MethodDelete, "/api/v1/wishlist", "sess-a", nil))

	require.Len(t, removed.Items, 1)
	assert.Equal(t, "2", removed.Items[0].ID)
	assert.Equal(t, service.OutcomeLocal, removed.Outcome)
	assert.Empty(t, cleared.Items)
}

// ============================================================================
// Session
// ============================================================================

func TestSession_SignedOutByDefault(t *testing.T) {
	s := newTestServer(t)

	resp := decodeData[SessionResponse](t, s.do(t, http.MethodGet, "/api/v1/session", "sess-a", nil))

	assert.Equal(t, "sess-a", resp.ID)
	assert.False(t, resp.Authenticated)
	assert.Nil(t, resp.User)
}

func TestSession_SignInLoadsBackendState(t *testing.T) {
	s := newTestServer(t)
	row := int64(900)
	s.backend.cart = []domain.CartItem{{ID: "5", Name: "Lamp", Price: 12, Quantity: 1, CartItemID: &row}}

	signIn(t, s, "sess-a")

	resp := decodeData[SessionResponse](t, s.do(t, http.MethodGet, "/api/v1/session", "sess-a", nil))
	assert.True(t, resp.Authenticated)
	require.NotNil(t, resp.User)
	assert.Equal(t, "ada@example.com", resp.User.Email)

	cart := decodeData[CartResponse](t, s.do(t, http.MethodGet, "/api/v1/cart", "sess-a", nil))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "5", cart.Items[0].ID)
}

func TestSession_SignInValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/session", "sess-a", SignInRequest{User: UserRequest{ID: 1, Email: "not-an-email"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeError(t, rec)
	assert.Contains(t, errResp.Errors, "token")
	assert.Contains(t, errResp.Errors, "email")
}

func TestSession_SignOutClearsEverything(t *testing.T) {
	s := newTestServer(t)
	signIn(t, s, "sess-a")
	s.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a", headphones())
	s.do(t, http.MethodPost, "/api/v1/wishlist/items", "sess-a", saved("1", 10))

	rec := s.do(t, http.MethodDelete, "/api/v1/session", "sess-a", nil)

	require.Equal(t, http.StatusNoContent, rec.Code)
	resp := decodeData[SessionResponse](t, s.do(t, http.MethodGet, "/api/v1/session", "sess-a", nil))
	assert.False(t, resp.Authenticated)
	assert.Empty(t, decodeData[CartResponse](t, s.do(t, http.MethodGet, "/api/v1/cart", "sess-a", nil)).Items)
	assert.Empty(t, decodeData[WishlistResponse](t, s.do(t, http.MethodGet, "/api/v1/wishlist", "sess-a", nil)).Items)
}

// ============================================================================
// Rate limiting and health checks
// ============================================================================

func TestRateLimit_PerSession(t *testing.T) {
	s := newTestServerWithLimit(t, 0.001, 2)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/cart", "sess-a", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/cart", "sess-a", nil).Code)
	limited := s.do(t, http.MethodGet, "/api/v1/cart", "sess-a", nil)
	other := s.do(t, http.MethodGet, "/api/v1/cart", "sess-b", nil)

	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestSessionLimiter_SweepsIdle(t *testing.T) {
	l := NewSessionLimiter(1, 1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("old"))
	now = now.Add(2 * time.Minute)
	for i := 0; i < limiterSweepEvery; i++ {
		l.Allow("fresh")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.entries, "old")
	assert.Contains(t, l.entries, "fresh")
}

func TestSessionLimiter_InvalidIDsGetNoBucket(t *testing.T) {
	l := NewSessionLimiter(0.001, 1, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("bad id!"))
	}
	assert.True(t, l.Allow("sess-a"))
	assert.False(t, l.Allow("sess-a"))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.entries, 1)
	assert.Contains(t, l.entries, "sess-a")
}

func TestRateLimit_InvalidSessionRejectedBeforeLimit(t *testing.T) {
	s := newTestServerWithLimit(t, 0.001, 1)

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodGet, "/api/v1/cart", "bad id!", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Zero(t, s.registry.Len())
}

func TestHealthChecks_SkipSession(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, s.registry.Len())
}
