package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// servicePath is the RPC route prefix; one POST endpoint per method, named
// after the inventory service's schema.
const servicePath = "/ecommerce.inventory.InventoryService/"

// Config holds the gateway's connection and retry policy. Immutable after
// construction so tests can inject deterministic values.
type Config struct {
	// BaseURL is the inventory service endpoint, e.g. "http://inventory:50051".
	BaseURL string
	// Timeout bounds every individual RPC attempt.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after the first one for
	// retriable failures.
	MaxRetries int
	// RetryBackoff is the linear backoff unit: attempt n sleeps n*RetryBackoff.
	RetryBackoff time.Duration
	// ReservationTimeout is the window a reservation stays held before the
	// inventory service expires it.
	ReservationTimeout time.Duration
}

// RPCClient implements Client over HTTP, one POST per protocol method, with
// per-attempt timeouts and bounded linear-backoff retry on transport errors.
type RPCClient struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient creates a gateway for the inventory service at cfg.BaseURL.
func NewRPCClient(cfg Config) *RPCClient {
	return &RPCClient{
		cfg:  cfg,
		http: &http.Client{},
		now:  time.Now,
	}
}

// Wire messages. Field names follow the inventory service schema.

type statusEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type requestMetadata struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

type wireItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type checkBatchRequest struct {
	Items    []wireItem      `json:"items"`
	Metadata requestMetadata `json:"metadata"`
}

type checkBatchResponse struct {
	Items []struct {
		ProductID         string `json:"product_id"`
		Available         bool   `json:"available"`
		AvailableQuantity int    `json:"available_quantity"`
		Status            string `json:"status"`
	} `json:"items"`
	ResultStatus statusEnvelope `json:"result_status"`
}

type reserveRequest struct {
	ReservationID string          `json:"reservation_id"`
	UserID        string          `json:"user_id"`
	Items         []wireItem      `json:"items"`
	ExpiresAt     int64           `json:"expires_at"`
	Metadata      requestMetadata `json:"metadata"`
}

type reserveResponse struct {
	ReservationID string         `json:"reservation_id"`
	AllReserved   bool           `json:"all_reserved"`
	ResultStatus  statusEnvelope `json:"result_status"`
}

type confirmRequest struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	ConfirmedAt   string `json:"confirmed_at"`
}

type confirmResponse struct {
	ResultStatus statusEnvelope `json:"result_status"`
}

type cancelRequest struct {
	ReservationID string          `json:"reservation_id"`
	Reason        string          `json:"reason"`
	Metadata      requestMetadata `json:"metadata"`
}

type cancelResponse struct {
	ResultStatus statusEnvelope `json:"result_status"`
}

// CheckBatch probes availability for the given items.
func (c *RPCClient) CheckBatch(ctx context.Context, items []Item) ([]Availability, error) {
	req := checkBatchRequest{
		Items:    toWire(items),
		Metadata: c.metadata(),
	}
	var resp checkBatchResponse
	if err := c.call(ctx, "CheckInventoryBatch", req, &resp, c.cfg.MaxRetries); err != nil {
		return nil, err
	}
	if err := resp.ResultStatus.toError(); err != nil {
		return nil, err
	}

	out := make([]Availability, len(resp.Items))
	for i, it := range resp.Items {
		out[i] = Availability{
			ProductID:         it.ProductID,
			Available:         it.Available,
			AvailableQuantity: it.AvailableQuantity,
			Status:            it.Status,
		}
	}
	return out, nil
}

// Reserve holds the given quantities for userID. The reservation id is
// generated here, before the first attempt, so every retry carries the same
// id and the callee can deduplicate.
func (c *RPCClient) Reserve(ctx context.Context, userID string, items []Item) (*Reservation, error) {
	req := reserveRequest{
		ReservationID: uuid.New().String(),
		UserID:        userID,
		Items:         toWire(items),
		ExpiresAt:     c.now().Add(c.cfg.ReservationTimeout).Unix(),
		Metadata:      c.metadata(),
	}
	var resp reserveResponse
	if err := c.call(ctx, "ReserveInventory", req, &resp, c.cfg.MaxRetries); err != nil {
		return nil, err
	}
	if err := resp.ResultStatus.toError(); err != nil {
		return nil, err
	}

	return &Reservation{
		ReservationID: resp.ReservationID,
		AllReserved:   resp.AllReserved,
	}, nil
}

// Confirm binds the reservation to an order. Single attempt: a transport
// failure here is ambiguous (the bind may have landed) and retrying blindly
// can not tell the difference, so the decision is left to the caller's
// reconciliation path.
func (c *RPCClient) Confirm(ctx context.Context, reservationID, orderID string) error {
	req := confirmRequest{
		ReservationID: reservationID,
		OrderID:       orderID,
		ConfirmedAt:   c.now().UTC().Format(time.RFC3339),
	}
	var resp confirmResponse
	if err := c.call(ctx, "ConfirmReservation", req, &resp, 0); err != nil {
		return err
	}
	return resp.ResultStatus.toError()
}

// Cancel releases the reservation. NOT_FOUND from the service means the
// reservation is already gone (cancelled or expired), which counts as
// success.
func (c *RPCClient) Cancel(ctx context.Context, reservationID, reason string) error {
	req := cancelRequest{
		ReservationID: reservationID,
		Reason:        reason,
		Metadata:      c.metadata(),
	}
	var resp cancelResponse
	if err := c.call(ctx, "CancelReservation", req, &resp, c.cfg.MaxRetries); err != nil {
		return err
	}

	err := resp.ResultStatus.toError()
	var rejected *RejectedError
	if errors.As(err, &rejected) && rejected.Code == StatusNotFound {
		return nil
	}
	return err
}

// call performs one RPC with up to retries additional attempts. Transport
// errors, timeouts, and 5xx responses are retriable with linear backoff;
// any decoded response is final.
func (c *RPCClient) call(ctx context.Context, method string, req, resp any, retries int) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * c.cfg.RetryBackoff
			select {
			case <-ctx.Done():
				return errors.Wrap(ErrUnavailable, ctx.Err().Error())
			case <-time.After(backoff):
			}
		}

		lastErr = c.attempt(ctx, method, body, resp)
		if lastErr == nil {
			return nil
		}
		var rejected *RejectedError
		if errors.As(lastErr, &rejected) {
			return lastErr
		}
	}
	return errors.Wrapf(ErrUnavailable, "%s after %d attempts: %s", method, retries+1, lastErr)
}

// attempt performs a single HTTP POST for the given method.
func (c *RPCClient) attempt(ctx context.Context, method string, body []byte, resp any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.cfg.BaseURL+servicePath+method, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "transport")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		_ = httpResp.Body.Close()
	}()

	switch {
	case httpResp.StatusCode >= 500:
		return errors.Errorf("server error: %s", httpResp.Status)
	case httpResp.StatusCode >= 400:
		return &RejectedError{Code: StatusInvalidArgument, Message: httpResp.Status}
	}

	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *RPCClient) metadata() requestMetadata {
	return requestMetadata{
		Source:    "checkout-service",
		Timestamp: c.now().UTC().Format(time.RFC3339),
	}
}

// toError converts a non-OK envelope into a RejectedError.
func (s statusEnvelope) toError() error {
	if s.Code == StatusOK {
		return nil
	}
	msg := s.Message
	if msg == "" {
		msg = "unknown inventory service error"
	}
	return &RejectedError{Code: s.Code, Message: msg}
}

func toWire(items []Item) []wireItem {
	out := make([]wireItem, len(items))
	for i, it := range items {
		out[i] = wireItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}
