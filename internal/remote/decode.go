package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
)

// PlaceholderImage is used when no image field of a row resolves.
const PlaceholderImage = "/images/placeholder.png"

// Shape tags which serialization a backend row used.
type Shape int

const (
	// ShapeNested rows carry the product snapshot as a "product" object.
	ShapeNested Shape = iota + 1
	// ShapeFlat rows carry "product" as a bare id next to product_* fields.
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeNested:
		return "nested"
	case ShapeFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// Product is the normalized product snapshot of a row.
type Product struct {
	ID       int64
	Name     string
	Slug     string
	Category string
	Price    float64
	Image    string
}

// Row is a decoded cart or wishlist row. ID is the backend row id.
type Row struct {
	Shape    Shape
	ID       int64
	Quantity int
	Product  Product
}

// CartItem maps the row to the local cart representation.
func (r Row) CartItem() domain.CartItem {
	qty := r.Quantity
	if qty < 1 {
		qty = 1
	}
	item := domain.CartItem{
		ID:       strconv.FormatInt(r.Product.ID, 10),
		Name:     r.Product.Name,
		Price:    r.Product.Price,
		Image:    r.Product.Image,
		Quantity: qty,
		Category: r.Product.Category,
		Slug:     r.Product.Slug,
	}
	if r.ID > 0 {
		id := r.ID
		item.CartItemID = &id
	}
	return item
}

// WishlistItem maps the row to the local wishlist representation.
func (r Row) WishlistItem() domain.WishlistItem {
	return domain.WishlistItem{
		ID:        strconv.FormatInt(r.ID, 10),
		ProductID: r.Product.ID,
		Name:      r.Product.Name,
		Price:     r.Product.Price,
		Image:     r.Product.Image,
		Category:  r.Product.Category,
		Slug:      r.Product.Slug,
	}
}

// DecodeCartItem decodes one backend cart row.
func DecodeCartItem(raw json.RawMessage) (domain.CartItem, error) {
	row, err := DecodeRow(raw)
	if err != nil {
		return domain.CartItem{}, err
	}
	return row.CartItem(), nil
}

// DecodeWishlistItem decodes one backend wishlist row. Wishlist rows must
// carry their own id since removal addresses the row, not the product.
func DecodeWishlistItem(raw json.RawMessage) (domain.WishlistItem, error) {
	row, err := DecodeRow(raw)
	if err != nil {
		return domain.WishlistItem{}, err
	}
	if row.ID <= 0 {
		return domain.WishlistItem{}, apperrors.Decode(fmt.Sprintf("wishlist row for product %d has no id", row.Product.ID))
	}
	return row.WishlistItem(), nil
}

// DecodeRow decodes a row in either shape. The shape only decides where the
// product id is read from; every snapshot field is read from the nested
// product first and from the flat product_* fields second, so rows mixing
// both serializations keep all of their data. Rows without a product id are
// rejected with an ErrDecode error.
func DecodeRow(raw json.RawMessage) (Row, error) {
	var r rowFields
	if err := json.Unmarshal(raw, &r); err != nil {
		return Row{}, apperrors.Decode(fmt.Sprintf("row: %v", err))
	}

	row := Row{
		Shape:    ShapeFlat,
		ID:       int64(r.ID),
		Quantity: int(r.Quantity),
	}

	var nested nestedProduct
	if p := bytes.TrimSpace(r.Product); len(p) > 0 && p[0] == '{' {
		if err := json.Unmarshal(p, &nested); err != nil {
			return Row{}, apperrors.Decode(fmt.Sprintf("nested product: %v", err))
		}
		row.Shape = ShapeNested
		row.Product.ID = int64(nested.ID)
	} else {
		row.Product.ID = int64(r.ProductID)
		if row.Product.ID <= 0 && len(p) > 0 {
			var bare flexInt
			_ = json.Unmarshal(p, &bare)
			row.Product.ID = int64(bare)
		}
	}
	if row.Product.ID <= 0 {
		return Row{}, apperrors.Decode(fmt.Sprintf("%s row %d has no product id", row.Shape, row.ID))
	}

	row.Product.Name = firstNonEmpty(nested.Name, r.ProductName)
	row.Product.Slug = firstNonEmpty(nested.Slug, r.ProductSlug)
	row.Product.Category = firstNonEmpty(nested.Category.String(), r.ProductCategory.String())
	row.Product.Price = firstPositive(
		nested.DiscountPrice, nested.FinalPrice, nested.Price,
		r.ProductDiscountPrice, r.ProductFinalPrice, r.ProductPrice,
	)
	row.Product.Image = firstNonEmpty(
		firstImage(nested.Image, nested.MainImage, nested.Thumbnail, nested.Images),
		firstImage(r.ProductImage, r.ProductMainImage, r.ProductThumbnail, r.ProductImages),
		PlaceholderImage,
	)
	return row, nil
}

type nestedProduct struct {
	ID            flexInt     `json:"id"`
	Name          string      `json:"name"`
	Slug          string      `json:"slug"`
	Price         flexFloat   `json:"price"`
	DiscountPrice flexFloat   `json:"discount_price"`
	FinalPrice    flexFloat   `json:"final_price"`
	Image         string      `json:"image"`
	MainImage     string      `json:"main_image"`
	Thumbnail     string      `json:"thumbnail"`
	Images        []imageRef  `json:"images"`
	Category      categoryRef `json:"category"`
}

type rowFields struct {
	ID                   flexInt         `json:"id"`
	Quantity             flexInt         `json:"quantity"`
	Product              json.RawMessage `json:"product"`
	ProductID            flexInt         `json:"product_id"`
	ProductName          string          `json:"product_name"`
	ProductSlug          string          `json:"product_slug"`
	ProductPrice         flexFloat       `json:"product_price"`
	ProductDiscountPrice flexFloat       `json:"product_discount_price"`
	ProductFinalPrice    flexFloat       `json:"product_final_price"`
	ProductImage         string          `json:"product_image"`
	ProductMainImage     string          `json:"product_main_image"`
	ProductThumbnail     string          `json:"product_thumbnail"`
	ProductImages        []imageRef      `json:"product_images"`
	ProductCategory      categoryRef     `json:"product_category"`
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

func firstPositive(candidates ...flexFloat) float64 {
	for _, c := range candidates {
		if c > 0 {
			return float64(c)
		}
	}
	return 0
}

func firstImage(image, main, thumb string, images []imageRef) string {
	if c := firstNonEmpty(image, main, thumb); c != "" {
		return c
	}
	for _, img := range images {
		if strings.TrimSpace(string(img)) != "" {
			return string(img)
		}
	}
	return ""
}

// flexFloat accepts a JSON number or a numeric string. Anything else,
// including Infinity and NaN spellings, decodes to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	*f = flexFloat(parseNumber(b))
	return nil
}

// flexInt is flexFloat truncated to an integer.
type flexInt int64

func (n *flexInt) UnmarshalJSON(b []byte) error {
	*n = flexInt(int64(parseNumber(b)))
	return nil
}

func parseNumber(b []byte) float64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return 0
		}
		s = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

// imageRef is an image given as a URL string or as {"image"|"url": ...}.
type imageRef string

func (i *imageRef) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*i = imageRef(s)
		return nil
	}
	var obj struct {
		Image string `json:"image"`
		URL   string `json:"url"`
	}
	if json.Unmarshal(b, &obj) == nil {
		if obj.Image != "" {
			*i = imageRef(obj.Image)
		} else {
			*i = imageRef(obj.URL)
		}
	}
	return nil
}

// categoryRef is a category given as a name or as {"name": ...}.
type categoryRef string

func (c *categoryRef) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*c = categoryRef(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(b, &obj) == nil {
		*c = categoryRef(obj.Name)
	}
	return nil
}

func (c categoryRef) String() string { return string(c) }
