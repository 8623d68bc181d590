package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/service"
	"github.com/sinaabedii/arian-etc-sub001/pkg/httputil"
	"github.com/sinaabedii/arian-etc-sub001/pkg/validator"
)

// --- Request DTOs ---

// CartItemRequest is a product snapshot sent by the storefront.
type CartItemRequest struct {
	ID         string  `json:"id" validate:"required,max=64"`
	Name       string  `json:"name" validate:"required,min=1,max=500"`
	Price      float64 `json:"price" validate:"gte=0"`
	Image      string  `json:"image" validate:"max=2048"`
	Category   string  `json:"category" validate:"max=200"`
	Slug       string  `json:"slug" validate:"max=500"`
	CartItemID *int64  `json:"cartItemId,omitempty" validate:"omitempty,gt=0"`
}

func (r CartItemRequest) toDomain() domain.CartItem {
	return domain.CartItem{
		ID:         r.ID,
		Name:       r.Name,
		Price:      r.Price,
		Image:      r.Image,
		Category:   r.Category,
		Slug:       r.Slug,
		CartItemID: r.CartItemID,
	}
}

// AddToCartRequest adds Quantity units of Item on the backend.
type AddToCartRequest struct {
	Item     CartItemRequest `json:"item" validate:"required"`
	Quantity int             `json:"quantity" validate:"required,gte=1,lte=100"`
}

// UpdateQuantityRequest sets a line's quantity. Zero or less removes it.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// --- Response DTOs ---

// CartResponse is the cart as exposed to the storefront.
type CartResponse struct {
	Items     []domain.CartItem `json:"items"`
	Total     float64           `json:"total"`
	ItemCount int               `json:"itemCount"`
	Loading   bool              `json:"loading"`
	Error     string            `json:"error,omitempty"`
	Outcome   service.Outcome   `json:"outcome,omitempty"`
}

// CartItemStatusResponse answers isInCart and getItemQuantity.
type CartItemStatusResponse struct {
	InCart   bool `json:"inCart"`
	Quantity int  `json:"quantity"`
}

func newCartResponse(cart *service.CartService, state domain.CartState, outcome service.Outcome) CartResponse {
	return CartResponse{
		Items:     state.Items,
		Total:     state.Total,
		ItemCount: state.ItemCount,
		Loading:   cart.Loading(),
		Error:     cart.LastError(),
		Outcome:   outcome,
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart := sessionFromContext(r.Context()).Cart
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart, cart.State(), ""))
}

// AddItem handles POST /api/v1/cart/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req CartItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart := sessionFromContext(r.Context()).Cart
	state, err := cart.AddItem(req.toDomain())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart, state, service.OutcomeLocal))
}

// AddToCart handles POST /api/v1/cart/items/remote
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart := sessionFromContext(r.Context()).Cart
	state, outcome, err := cart.AddToCart(r.Context(), req.Item.toDomain(), req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart, state, outcome))
}

// GetItem handles GET /api/v1/cart/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	cart := sessionFromContext(r.Context()).Cart
	id := chi.URLParam(r, "id")
	httputil.WriteData(w, http.StatusOK, CartItemStatusResponse{
		InCart:   cart.IsInCart(id),
		Quantity: cart.GetItemQuantity(id),
	})
}

// UpdateQuantity handles PUT /api/v1/cart/items/{id}
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart := sessionFromContext(r.Context()).Cart
	state, outcome, err := cart.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart, state, outcome))
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart := sessionFromContext(r.Context()).Cart
	state, outcome, err := cart.RemoveItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart, state, outcome))
}

// ClearCart handles DELETE /api/v1/cart
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart := sessionFromContext(r.Context()).Cart
	state, err := cart.ClearCart()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart, state, service.OutcomeLocal))
}

// RefreshCart handles POST /api/v1/cart/refresh. A failed refresh is
// reported through the error field, not the status code.
func (h *Handler) RefreshCart(w http.ResponseWriter, r *http.Request) {
	cart := sessionFromContext(r.Context()).Cart
	_ = cart.RefreshFromServer(r.Context())
	httputil.WriteData(w, http.StatusOK, newCartResponse(cart, cart.State(), ""))
}
