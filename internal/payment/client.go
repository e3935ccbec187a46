// Package payment implements the client for the external payment
// gateway's REST API.  The workflow only needs two calls: confirm,
// which settles a payment the customer already authorized in the
// gateway's widget, and cancel, which refunds a settled payment.
// Both are single-attempt synchronous calls; retry policy is left
// to the caller.
package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the production endpoint of the gateway.
const DefaultBaseURL = "https://api.tosspayments.com"

// ConfirmRequest carries the triple the client returns with after
// the widget redirect.  OrderID is the string form of the local
// order identifier handed to the widget at intake.
type ConfirmRequest struct {
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
	PaymentKey string `json:"paymentKey"`
}

// Settlement is the parsed body of a successful confirmation.  Raw
// keeps the complete gateway payload so handlers can return it to
// the client untouched.
type Settlement struct {
	PaymentKey  string    `json:"paymentKey"`
	OrderID     string    `json:"orderId"`
	Method      string    `json:"method"`
	TotalAmount int64     `json:"totalAmount"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requestedAt"`
	ApprovedAt  time.Time `json:"approvedAt"`

	Raw json.RawMessage `json:"-"`
}

// GatewayError is a non-2xx response from the gateway.  Status is
// the gateway's own HTTP status; Code and Message come from its
// error body and are surfaced to the end user together.
type GatewayError struct {
	Status  int
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Client calls the payment gateway over HTTPS with Basic
// authentication derived from the server-held secret key.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient builds a gateway client.  baseURL may be empty, in
// which case the production endpoint is used; tests point it at a
// local server.
func NewClient(secretKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// authorization builds the Basic auth header value.  The gateway
// treats the secret key as a username with an empty password.
func (c *Client) authorization() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.secretKey+":"))
}

// Confirm settles a previously authorized payment.  A non-2xx
// response is returned as *GatewayError with the gateway's status,
// code and message; transport failures are returned as-is.  No
// retry is attempted.
func (c *Client) Confirm(ctx context.Context, req ConfirmRequest) (*Settlement, error) {
	body, err := c.post(ctx, c.baseURL+"/v1/payments/confirm", req)
	if err != nil {
		return nil, err
	}
	var s Settlement
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode settlement: %w", err)
	}
	s.Raw = body
	return &s, nil
}

// Cancel refunds a settled payment identified by its payment key.
// The gateway requires a human-readable reason.
func (c *Client) Cancel(ctx context.Context, paymentKey, reason string) error {
	url := c.baseURL + "/v1/payments/" + paymentKey + "/cancel"
	_, err := c.post(ctx, url, map[string]string{"cancelReason": reason})
	return err
}

// post sends a JSON body and returns the raw response body, or a
// *GatewayError when the gateway answered with a non-2xx status.
func (c *Client) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.authorization())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ge := &GatewayError{Status: resp.StatusCode, Code: "UNKNOWN_ERROR", Message: "payment gateway rejected the request"}
		var eb struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &eb); err == nil {
			if eb.Code != "" {
				ge.Code = eb.Code
			}
			if eb.Message != "" {
				ge.Message = eb.Message
			}
		}
		return nil, ge
	}
	return body, nil
}
