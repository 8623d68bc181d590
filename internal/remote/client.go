package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	apperrors "github.com/sinaabedii/arian-etc-sub001/pkg/errors"
	"github.com/sinaabedii/arian-etc-sub001/pkg/httpclient"
	"github.com/sinaabedii/arian-etc-sub001/pkg/logger"
)

const (
	serviceName = "commerce-api"
	tracerName  = "github.com/sinaabedii/arian-etc-sub001/internal/remote"

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 4 << 20
)

// Doer sends a request. Both *httpclient.Client and
// *httpclient.CircuitBreakerClient satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// TokenSource supplies the bearer credential. An empty token means the
// visitor is not signed in.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CartAPI is the backend cart surface used by the cart service.
type CartAPI interface {
	GetCart(ctx context.Context, page, pageSize int) ([]domain.CartItem, error)
	AddCartItem(ctx context.Context, productID int64, quantity int) error
	UpdateCartItem(ctx context.Context, cartItemID int64, quantity int) error
	RemoveCartItem(ctx context.Context, cartItemID int64) error
}

// WishlistAPI is the backend wishlist surface used by the wishlist service.
type WishlistAPI interface {
	GetWishlist(ctx context.Context, page, pageSize int) ([]domain.WishlistItem, error)
	AddWishlistItem(ctx context.Context, productID int64) (json.RawMessage, error)
	RemoveWishlistItem(ctx context.Context, id string) error
}

// Client calls the commerce backend's cart and wishlist endpoints.
type Client struct {
	baseURL string
	doer    Doer
	tokens  TokenSource
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, doer Doer, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
		tokens:  tokens,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

var (
	_ CartAPI     = (*Client)(nil)
	_ WishlistAPI = (*Client)(nil)
)

// GetCart fetches one page of the remote cart. Rows that cannot be decoded
// are skipped and logged.
func (c *Client) GetCart(ctx context.Context, page, pageSize int) ([]domain.CartItem, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	body, err := c.call(ctx, "GetCart", http.MethodGet, "/api/cart/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	rows, err := unwrapList(body)
	if err != nil {
		return nil, err
	}

	items := make([]domain.CartItem, 0, len(rows))
	for i, raw := range rows {
		item, err := DecodeCartItem(raw)
		if err != nil {
			c.skipRow(ctx, "cart", i, err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// AddCartItem adds quantity of a product to the remote cart.
func (c *Client) AddCartItem(ctx context.Context, productID int64, quantity int) error {
	payload := map[string]any{"product": productID, "quantity": quantity}
	_, err := c.call(ctx, "AddCartItem", http.MethodPost, "/api/cart/items/", payload)
	return err
}

// UpdateCartItem sets the quantity of a remote cart row.
func (c *Client) UpdateCartItem(ctx context.Context, cartItemID int64, quantity int) error {
	path := fmt.Sprintf("/api/cart/items/%d/", cartItemID)
	_, err := c.call(ctx, "UpdateCartItem", http.MethodPatch, path, map[string]any{"quantity": quantity})
	return err
}

// RemoveCartItem deletes a remote cart row.
func (c *Client) RemoveCartItem(ctx context.Context, cartItemID int64) error {
	path := fmt.Sprintf("/api/cart/items/%d/", cartItemID)
	_, err := c.call(ctx, "RemoveCartItem", http.MethodDelete, path, nil)
	return err
}

// GetWishlist fetches one page of the remote wishlist.
func (c *Client) GetWishlist(ctx context.Context, page, pageSize int) ([]domain.WishlistItem, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	body, err := c.call(ctx, "GetWishlist", http.MethodGet, "/api/wishlist/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	rows, err := unwrapList(body)
	if err != nil {
		return nil, err
	}

	items := make([]domain.WishlistItem, 0, len(rows))
	for i, raw := range rows {
		item, err := DecodeWishlistItem(raw)
		if err != nil {
			c.skipRow(ctx, "wishlist", i, err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// AddWishlistItem adds a product to the remote wishlist and returns the
// created row as sent by the backend.
func (c *Client) AddWishlistItem(ctx context.Context, productID int64) (json.RawMessage, error) {
	body, err := c.call(ctx, "AddWishlistItem", http.MethodPost, "/api/wishlist/", map[string]any{"product": productID})
	if err != nil {
		return nil, err
	}
	return unwrapData(body)
}

// RemoveWishlistItem deletes a remote wishlist row.
func (c *Client) RemoveWishlistItem(ctx context.Context, id string) error {
	path := "/api/wishlist/" + url.PathEscape(id) + "/"
	_, err := c.call(ctx, "RemoveWishlistItem", http.MethodDelete, path, nil)
	return err
}

func (c *Client) skipRow(ctx context.Context, resource string, index int, err error) {
	logger.WithContext(ctx, c.logger).WarnContext(ctx, "skipping undecodable remote row",
		slog.String("resource", resource),
		slog.Int("index", index),
		slog.String("error", err.Error()),
	)
}

// call performs one authenticated request and returns the response body of
// a 2xx response. Without a token it fails with ErrUnauthorized before any
// network traffic.
func (c *Client) call(ctx context.Context, op, method, path string, payload any) (_ []byte, err error) {
	ctx, span := c.tracer.Start(ctx, "remote."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("peer.service", serviceName),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	if token == "" {
		return nil, apperrors.Unauthorized("no credential for " + serviceName)
	}

	var reqBody io.Reader = http.NoBody
	var encoded []byte
	if payload != nil {
		if encoded, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", op, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(encoded)), nil
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", serviceName, op, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}

	// Mutations may answer 200 with {"success": false, ...}.
	if len(bytes.TrimSpace(body)) > 0 {
		if _, err := unwrapData(body); err != nil && !isDecodeError(err) {
			return nil, err
		}
	}
	return body, nil
}
