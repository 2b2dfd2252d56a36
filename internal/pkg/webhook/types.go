package webhook

import (
	"errors"
	"time"
)

// Notification topics delivered by the provider.
const (
	TopicPayment       = "payment"
	TopicMerchantOrder = "merchant_order"
)

// Notification is the transient, request-scoped view of an inbound webhook
// delivery. It is never persisted verbatim and none of its claims about
// payment state are trusted; the authoritative payment object is always
// re-fetched from the provider API.
type Notification struct {
	Topic           string
	DataID          string
	RequestID       string
	SignatureHeader string
	ClientIP        string
	PayloadJSON     string
	ReceivedAt      time.Time
}

// Outcome codes for a processed notification.
const (
	OutcomeProcessed = "processed" // side effects applied in this pass
	OutcomeDuplicate = "duplicate" // idempotent repeat, prior outcome returned
	OutcomePending   = "pending"   // acknowledged, no side effect yet
	OutcomeIgnored   = "ignored"   // disabled provider or irrelevant topic
)

// Outcome is the result of one notification pass.
type Outcome struct {
	Code        string
	OrderStatus string
}

var (
	// ErrStaleNotification rejects notifications older than the configured window.
	ErrStaleNotification = errors.New("notification timestamp too old")
	// ErrFutureTimestamp rejects notifications timestamped ahead of the clock-skew allowance.
	ErrFutureTimestamp = errors.New("notification timestamp in the future")
	// ErrUntrustedSource rejects requests from outside the provider's published ranges.
	ErrUntrustedSource = errors.New("request source outside provider ranges")
	// ErrOrderNotFound means no local order matches the payment's external reference.
	ErrOrderNotFound = errors.New("no order matches external reference")
	// ErrInFlight means another delivery for the same payment is mid-processing.
	// The provider redelivers on a non-200 response, so the retry lands after
	// the first pass finished and observes its recorded outcome.
	ErrInFlight = errors.New("payment already being processed")
	// ErrStockInvariant signals an attempted double stock decrement. The
	// stock_reduced guard and the per-payment lock make this structurally
	// impossible; seeing it means lock discipline was violated.
	ErrStockInvariant = errors.New("stock decrement invariant violated")
)
