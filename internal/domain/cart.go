package domain

// CartItem is one line of the visitor's cart as the storefront sees it. ID is
// the product id; CartItemID is the backend cart row id and is nil until the
// line has been synced.
type CartItem struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Image      string  `json:"image"`
	Quantity   int     `json:"quantity"`
	Category   string  `json:"category"`
	Slug       string  `json:"slug"`
	CartItemID *int64  `json:"cartItemId,omitempty"`
}

// HasRemoteID reports whether the line exists on the backend.
func (i CartItem) HasRemoteID() bool {
	return i.CartItemID != nil
}

// CartState is the reducer state. Total and ItemCount are derived from Items
// by NewCartState and must not be set by hand.
type CartState struct {
	Items     []CartItem `json:"items"`
	Total     float64    `json:"total"`
	ItemCount int        `json:"itemCount"`
}

// NewCartState builds a state from items, computing the derived totals.
// The slice is owned by the returned state.
func NewCartState(items []CartItem) CartState {
	if items == nil {
		items = []CartItem{}
	}
	s := CartState{Items: items}
	for _, item := range items {
		s.Total += item.Price * float64(item.Quantity)
		s.ItemCount += item.Quantity
	}
	return s
}

// EmptyCart returns the zero-item state.
func EmptyCart() CartState {
	return NewCartState(nil)
}

// FindItemIndex returns the index of the line for productID, or -1.
func (s CartState) FindItemIndex(productID string) int {
	for i := range s.Items {
		if s.Items[i].ID == productID {
			return i
		}
	}
	return -1
}

// Item returns the line for productID.
func (s CartState) Item(productID string) (CartItem, bool) {
	if i := s.FindItemIndex(productID); i >= 0 {
		return s.Items[i], true
	}
	return CartItem{}, false
}

// Contains reports whether productID has a line in the cart.
func (s CartState) Contains(productID string) bool {
	return s.FindItemIndex(productID) >= 0
}

// Quantity returns the quantity held for productID, 0 when absent.
func (s CartState) Quantity(productID string) int {
	if item, ok := s.Item(productID); ok {
		return item.Quantity
	}
	return 0
}

// CloneItems returns a copy of the items that shares nothing with s.
func (s CartState) CloneItems() []CartItem {
	out := make([]CartItem, len(s.Items))
	for i, item := range s.Items {
		out[i] = item.clone()
	}
	return out
}

func (i CartItem) clone() CartItem {
	if i.CartItemID != nil {
		id := *i.CartItemID
		i.CartItemID = &id
	}
	return i
}

// CartAction is one of AddItem, RemoveItem, UpdateQuantity, ClearCart or
// LoadCart.
type CartAction interface {
	cartAction()
}

// AddItem increments the line for Item.ID by one, or appends it with
// quantity 1.
type AddItem struct{ Item CartItem }

// RemoveItem drops the line for ID. Removing a missing line is a no-op.
type RemoveItem struct{ ID string }

// UpdateQuantity sets the quantity of the line for ID. A quantity of zero or
// less removes the line.
type UpdateQuantity struct {
	ID       string
	Quantity int
}

// ClearCart empties the cart.
type ClearCart struct{}

// LoadCart replaces all lines, as done on hydration and reconciliation.
type LoadCart struct{ Items []CartItem }

func (AddItem) cartAction()        {}
func (RemoveItem) cartAction()     {}
func (UpdateQuantity) cartAction() {}
func (ClearCart) cartAction()      {}
func (LoadCart) cartAction()       {}

// ReduceCart applies action to state and returns the new state. It never
// mutates state.Items.
func ReduceCart(state CartState, action CartAction) CartState {
	switch a := action.(type) {
	case AddItem:
		items := state.CloneItems()
		if i := state.FindItemIndex(a.Item.ID); i >= 0 {
			items[i].Quantity++
			if items[i].CartItemID == nil && a.Item.CartItemID != nil {
				items[i].CartItemID = a.Item.clone().CartItemID
			}
			return NewCartState(items)
		}
		added := a.Item.clone()
		added.Quantity = 1
		return NewCartState(append(items, added))

	case RemoveItem:
		return NewCartState(withoutItem(state.Items, a.ID))

	case UpdateQuantity:
		if a.Quantity <= 0 {
			return ReduceCart(state, RemoveItem{ID: a.ID})
		}
		i := state.FindItemIndex(a.ID)
		if i < 0 {
			return state
		}
		items := state.CloneItems()
		items[i].Quantity = a.Quantity
		return NewCartState(items)

	case ClearCart:
		return EmptyCart()

	case LoadCart:
		return NewCartState(normalizeCartItems(a.Items))

	default:
		return state
	}
}

func withoutItem(items []CartItem, productID string) []CartItem {
	out := make([]CartItem, 0, len(items))
	for _, item := range items {
		if item.ID != productID {
			out = append(out, item.clone())
		}
	}
	return out
}

// normalizeCartItems enforces one line per product id with quantity >= 1.
// Lines for the same product are merged by summing quantities; the first
// line's snapshot and row id win.
func normalizeCartItems(items []CartItem) []CartItem {
	out := make([]CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 || item.ID == "" {
			continue
		}
		if i, ok := index[item.ID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item.clone())
	}
	return out
}
