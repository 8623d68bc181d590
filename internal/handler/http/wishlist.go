package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/service"
	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
	"github.com/sinaabedii/arian-etc-sub001/pkg/httputil"
	"github.com/sinaabedii/arian-etc-sub001/pkg/validator"
)

const maxRawItemBytes = 1 << 16

// WishlistItemRequest is a wishlist row sent by the storefront.
type WishlistItemRequest struct {
	ID        string  `json:"id" validate:"required,max=64"`
	ProductID int64   `json:"productId" validate:"gt=0"`
	Name      string  `json:"name" validate:"required,min=1,max=500"`
	Price     float64 `json:"price" validate:"gte=0"`
	Image     string  `json:"image" validate:"max=2048"`
	Category  string  `json:"category" validate:"max=200"`
	Slug      string  `json:"slug" validate:"max=500"`
}

func (r WishlistItemRequest) toDomain() domain.WishlistItem {
	return domain.WishlistItem{
		ID:        r.ID,
		ProductID: r.ProductID,
		Name:      r.Name,
		Price:     r.Price,
		Image:     r.Image,
		Category:  r.Category,
		Slug:      r.Slug,
	}
}

// WishlistResponse is the wishlist as exposed to the storefront.
type WishlistResponse struct {
	Items   []domain.WishlistItem `json:"items"`
	Loading bool                  `json:"loading"`
	Error   string                `json:"error,omitempty"`
	Outcome service.Outcome       `json:"outcome,omitempty"`
	Added   *bool                 `json:"added,omitempty"`
	Item    *domain.WishlistItem  `json:"item,omitempty"`
}

// WishlistProductResponse answers isInWishlist.
type WishlistProductResponse struct {
	InWishlist bool                 `json:"inWishlist"`
	Item       *domain.WishlistItem `json:"item,omitempty"`
}

func newWishlistResponse(wl *service.WishlistService, state domain.WishlistState) WishlistResponse {
	return WishlistResponse{
		Items:   state.Items,
		Loading: wl.Loading(),
		Error:   wl.LastError(),
	}
}

func productIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.InvalidInput("productId must be a positive integer")
	}
	return id, nil
}

// GetWishlist handles GET /api/v1/wishlist
func (h *Handler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	wl := sessionFromContext(r.Context()).Wishlist
	httputil.WriteData(w, http.StatusOK, newWishlistResponse(wl, wl.State()))
}

// AddToWishlist handles POST /api/v1/wishlist/items
func (h *Handler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	var req WishlistItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	wl := sessionFromContext(r.Context()).Wishlist
	state, added, err := wl.AddToWishlist(req.toDomain())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := newWishlistResponse(wl, state)
	resp.Added = &added
	httputil.WriteData(w, http.StatusOK, resp)
}

// AddFromAPIItem handles POST /api/v1/wishlist/items/api. The body is a
// backend wishlist row in either of its shapes.
func (h *Handler) AddFromAPIItem(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRawItemBytes)).Decode(&raw); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	wl := sessionFromContext(r.Context()).Wishlist
	item, state, err := wl.AddFromAPIItem(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := newWishlistResponse(wl, state)
	resp.Item = &item
	httputil.WriteData(w, http.StatusOK, resp)
}

// AddProduct handles POST /api/v1/wishlist/products/{productId}
func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	wl := sessionFromContext(r.Context()).Wishlist
	item, state, err := wl.AddProduct(r.Context(), productID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := newWishlistResponse(wl, state)
	resp.Item = &item
	httputil.WriteData(w, http.StatusOK, resp)
}

// GetProduct handles GET /api/v1/wishlist/products/{productId}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := productIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	wl := sessionFromContext(r.Context()).Wishlist
	resp := WishlistProductResponse{}
	if item, ok := wl.FindByProductID(productID); ok {
		resp.InWishlist = true
		resp.Item = &item
	}
	httputil.WriteData(w, http.StatusOK, resp)
}

// RemoveFromWishlist handles DELETE /api/v1/wishlist/items/{id}
func (h *Handler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	wl := sessionFromContext(r.Context()).Wishlist
	state, outcome, err := wl.RemoveFromWishlist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := newWishlistResponse(wl, state)
	resp.Outcome = outcome
	httputil.WriteData(w, http.StatusOK, resp)
}

// ClearWishlist handles DELETE /api/v1/wishlist
func (h *Handler) ClearWishlist(w http.ResponseWriter, r *http.Request) {
	wl := sessionFromContext(r.Context()).Wishlist
	state, err := wl.ClearWishlist()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, newWishlistResponse(wl, state))
}

// RefreshWishlist handles POST /api/v1/wishlist/refresh
func (h *Handler) RefreshWishlist(w http.ResponseWriter, r *http.Request) {
	wl := sessionFromContext(r.Context()).Wishlist
	_ = wl.RefreshFromServer(r.Context())
	httputil.WriteData(w, http.StatusOK, newWishlistResponse(wl, wl.State()))
}
