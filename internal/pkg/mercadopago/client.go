package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPIBaseURL = "https://api.mercadopago.com"

// Payment status values reported by the provider.
const (
	PaymentStatusApproved    = "approved"
	PaymentStatusPending     = "pending"
	PaymentStatusInProcess   = "in_process"
	PaymentStatusRejected    = "rejected"
	PaymentStatusCancelled   = "cancelled"
	PaymentStatusRefunded    = "refunded"
	PaymentStatusChargedBack = "charged_back"
)

var (
	// ErrPaymentNotFound means the provider no longer acknowledges the
	// referenced payment. Not retryable.
	ErrPaymentNotFound = errors.New("payment not found at provider")
	// ErrProviderUnavailable means the provider API could not be reached or
	// answered with a server error. Retryable via the provider's own
	// webhook redelivery.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// VerifiedPayment is the authoritative payment record fetched from the
// provider API. The webhook body's own claims about payment state are never
// trusted; only this object is.
type VerifiedPayment struct {
	ID                int64
	Status            string
	StatusDetail      string
	TransactionAmount float64
	CurrencyID        string
	ExternalReference string
	PayerEmail        string
	PaymentMethodID   string
	PaymentTypeID     string
	DateApproved      *time.Time
	LiveMode          bool
}

// MerchantOrderPayment is one payment attached to a merchant order.
type MerchantOrderPayment struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// MerchantOrder is the provider-side order aggregate for merchant_order
// topic notifications.
type MerchantOrder struct {
	ID                int64                  `json:"id"`
	ExternalReference string                 `json:"external_reference"`
	OrderStatus       string                 `json:"order_status"`
	Payments          []MerchantOrderPayment `json:"payments"`
}

// Client calls the Mercadopago REST API with a mode-appropriate access token.
type Client struct {
	AccessToken string
	BaseURL     string
	HTTPClient  *http.Client
}

// NewClient creates a provider client for the given access token.
func NewClient(accessToken string) *Client {
	return &Client{
		AccessToken: strings.TrimSpace(accessToken),
		BaseURL:     defaultAPIBaseURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FetchPayment retrieves the authoritative payment object by ID.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*VerifiedPayment, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return nil, errors.New("payment id is required")
	}

	body, err := c.get(ctx, "/v1/payments/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID                int64   `json:"id"`
		Status            string  `json:"status"`
		StatusDetail      string  `json:"status_detail"`
		TransactionAmount float64 `json:"transaction_amount"`
		CurrencyID        string  `json:"currency_id"`
		ExternalReference string  `json:"external_reference"`
		PaymentMethodID   string  `json:"payment_method_id"`
		PaymentTypeID     string  `json:"payment_type_id"`
		DateApproved      string  `json:"date_approved"`
		LiveMode          bool    `json:"live_mode"`
		Payer             struct {
			Email string `json:"email"`
		} `json:"payer"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse payment response: %w", err)
	}
	if raw.ID == 0 {
		return nil, errors.New("payment response missing id")
	}

	out := &VerifiedPayment{
		ID:                raw.ID,
		Status:            strings.TrimSpace(raw.Status),
		StatusDetail:      strings.TrimSpace(raw.StatusDetail),
		TransactionAmount: raw.TransactionAmount,
		CurrencyID:        strings.TrimSpace(raw.CurrencyID),
		ExternalReference: strings.TrimSpace(raw.ExternalReference),
		PayerEmail:        strings.TrimSpace(raw.Payer.Email),
		PaymentMethodID:   strings.TrimSpace(raw.PaymentMethodID),
		PaymentTypeID:     strings.TrimSpace(raw.PaymentTypeID),
		LiveMode:          raw.LiveMode,
	}
	if raw.DateApproved != "" {
		if t, err := time.Parse(time.RFC3339, raw.DateApproved); err == nil {
			out.DateApproved = &t
		}
	}
	return out, nil
}

// FetchMerchantOrder retrieves a merchant order by ID for merchant_order
// topic notifications.
func (c *Client) FetchMerchantOrder(ctx context.Context, merchantOrderID string) (*MerchantOrder, error) {
	id := strings.TrimSpace(merchantOrderID)
	if id == "" {
		return nil, errors.New("merchant order id is required")
	}

	body, err := c.get(ctx, "/merchant_orders/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var out MerchantOrder
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse merchant order response: %w", err)
	}
	if out.ID == 0 {
		return nil, errors.New("merchant order response missing id")
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.AccessToken == "" {
		return nil, errors.New("access token is not configured")
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrPaymentNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrProviderUnavailable, resp.StatusCode, string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("provider request failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return body, nil
}
