// Package cart is the HTTP client for the cart service, which owns the
// user's cart contents. Checkout reads the cart as priced line-item
// snapshots and clears it after a successful order.
package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/vietcart/checkout-service/internal/domain/order"
	"github.com/vietcart/checkout-service/internal/domain/pricing"
)

// Config holds the cart service connection settings.
type Config struct {
	// BaseURL is the cart service endpoint, e.g. "http://cart:8081".
	BaseURL string
	// Timeout bounds every request.
	Timeout time.Duration
}

// Client talks to the cart service's internal API.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ order.CartReader = (*Client)(nil)

// NewClient creates a cart service client for cfg.BaseURL.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type cartResponse struct {
	Items []struct {
		ProductID   string          `json:"product_id"`
		ProductName string          `json:"product_name"`
		ImageURL    string          `json:"image_url"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
		Quantity    int             `json:"quantity"`
		Categories  []string        `json:"categories"`
	} `json:"items"`
}

type clearRequest struct {
	Reason string `json:"reason"`
}

// Items fetches the user's cart. A missing cart is an empty one.
func (c *Client) Items(ctx context.Context, userID string) ([]pricing.LineItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/internal/carts/"+userID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch cart")
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return []pricing.LineItem{}, nil
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Errorf("cart service: %s", resp.Status)
	}

	var body cartResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}

	items := make([]pricing.LineItem, len(body.Items))
	for i, it := range body.Items {
		items[i] = pricing.LineItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			ImageURL:    it.ImageURL,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Categories:  it.Categories,
		}
	}
	return items, nil
}

// Clear empties the user's cart. Clearing an already-empty or missing cart
// is not an error.
func (c *Client) Clear(ctx context.Context, userID, reason string) error {
	body, err := json.Marshal(clearRequest{Reason: reason})
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/internal/carts/"+userID+"/clear", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "clear cart")
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return errors.Errorf("cart service: %s", resp.Status)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
