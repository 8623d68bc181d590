package domain

import "strconv"

// WishlistItem is one saved product. ID is the backend wishlist row id and is
// the uniqueness key; ProductID may repeat if the backend allows it.
type WishlistItem struct {
	ID        string  `json:"id"`
	ProductID int64   `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Image     string  `json:"image"`
	Category  string  `json:"category"`
	Slug      string  `json:"slug"`
}

// WishlistState is the wishlist reducer state.
type WishlistState struct {
	Items []WishlistItem `json:"items"`
}

// NewWishlistState wraps items, never returning a nil slice.
func NewWishlistState(items []WishlistItem) WishlistState {
	if items == nil {
		items = []WishlistItem{}
	}
	return WishlistState{Items: items}
}

// EmptyWishlist returns the zero-item state.
func EmptyWishlist() WishlistState {
	return NewWishlistState(nil)
}

// Contains reports whether a row with this id exists.
func (s WishlistState) Contains(id string) bool {
	for _, item := range s.Items {
		if item.ID == id {
			return true
		}
	}
	return false
}

// FindByProductID returns the first row saved for productID.
func (s WishlistState) FindByProductID(productID int64) (WishlistItem, bool) {
	for _, item := range s.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return WishlistItem{}, false
}

// ContainsProduct reports whether productID is saved. productID is matched
// against WishlistItem.ProductID, never the row id.
func (s WishlistState) ContainsProduct(productID int64) bool {
	_, ok := s.FindByProductID(productID)
	return ok
}

// ContainsProductString is ContainsProduct for a product id taken from a URL
// or a CartItem.ID. Non-numeric ids are never saved.
func (s WishlistState) ContainsProductString(productID string) bool {
	id, err := strconv.ParseInt(productID, 10, 64)
	if err != nil {
		return false
	}
	return s.ContainsProduct(id)
}

// WishlistAction is one of AddToWishlist, RemoveFromWishlist, ClearWishlist
// or LoadWishlist.
type WishlistAction interface {
	wishlistAction()
}

// AddToWishlist appends Item unless a row with the same ID exists.
type AddToWishlist struct{ Item WishlistItem }

// RemoveFromWishlist drops the row with ID.
type RemoveFromWishlist struct{ ID string }

// ClearWishlist empties the wishlist.
type ClearWishlist struct{}

// LoadWishlist replaces all rows.
type LoadWishlist struct{ Items []WishlistItem }

func (AddToWishlist) wishlistAction()      {}
func (RemoveFromWishlist) wishlistAction() {}
func (ClearWishlist) wishlistAction()      {}
func (LoadWishlist) wishlistAction()       {}

// ReduceWishlist applies action to state and returns the new state.
func ReduceWishlist(state WishlistState, action WishlistAction) WishlistState {
	switch a := action.(type) {
	case AddToWishlist:
		if a.Item.ID == "" || state.Contains(a.Item.ID) {
			return state
		}
		items := make([]WishlistItem, len(state.Items), len(state.Items)+1)
		copy(items, state.Items)
		return NewWishlistState(append(items, a.Item))

	case RemoveFromWishlist:
		items := make([]WishlistItem, 0, len(state.Items))
		for _, item := range state.Items {
			if item.ID != a.ID {
				items = append(items, item)
			}
		}
		return NewWishlistState(items)

	case ClearWishlist:
		return EmptyWishlist()

	case LoadWishlist:
		items := make([]WishlistItem, 0, len(a.Items))
		seen := make(map[string]struct{}, len(a.Items))
		for _, item := range a.Items {
			if _, dup := seen[item.ID]; dup || item.ID == "" {
				continue
			}
			seen[item.ID] = struct{}{}
			items = append(items, item)
		}
		return NewWishlistState(items)

	default:
		return state
	}
}
