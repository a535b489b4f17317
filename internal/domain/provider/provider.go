package provider

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Gateway defines the interface for mobile-money providers (M-Pesa,
// Airtel, etc.). Adapters own auth token caching, phone normalization,
// field truncation and failure-code mapping so every caller can treat
// providers interchangeably.
type Gateway interface {
	// InitiatePayment starts a collection push to the payer's phone
	InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResponse, error)

	// QueryStatus looks up the canonical status of an initiated payment
	QueryStatus(ctx context.Context, providerRef string) (*StatusResponse, error)

	// Refund returns funds for a settled transaction
	Refund(ctx context.Context, providerRef string, amount decimal.Decimal) (*RefundResponse, error)

	// ParseCallback canonicalizes a raw webhook payload; it performs no I/O
	ParseCallback(payload json.RawMessage) (*CallbackResult, error)

	// Name returns the provider identifier the registry keys on
	Name() string
}

// InitiateRequest is a provider-agnostic collection request
type InitiateRequest struct {
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reference   string          `json:"reference"`   // internal order/intent reference
	Description string          `json:"description"`
	CallbackURL string          `json:"callback_url"`
}

// InitiateResponse carries the provider correlation references for a push
type InitiateResponse struct {
	ProviderRef       string     `json:"provider_ref"`
	CheckoutRequestID string     `json:"checkout_request_id,omitempty"` // M-Pesa STK correlation key
	MerchantRequestID string     `json:"merchant_request_id,omitempty"`
	NextAction        string     `json:"next_action"`
	Raw               map[string]interface{} `json:"raw,omitempty"`
}

// CanonicalStatus is the provider-independent view of a payment's state
type CanonicalStatus string

const (
	StatusPending   CanonicalStatus = "pending"
	StatusSucceeded CanonicalStatus = "succeeded"
	StatusFailed    CanonicalStatus = "failed"
)

// StatusResponse is the result of a status query
type StatusResponse struct {
	Status     CanonicalStatus `json:"status"`
	ResultCode string          `json:"result_code"`
	ResultDesc string          `json:"result_desc"`
}

// RefundResponse is the result of a refund request
type RefundResponse struct {
	ProviderRefundID string `json:"provider_refund_id"`
	Status           string `json:"status"`
}

// CallbackResult is the canonical parsed view of an inbound provider
// callback. The raw payload is retained separately for audit; business
// logic only reads this struct.
type CallbackResult struct {
	Success       bool            `json:"success"`
	ResultCode    string          `json:"result_code"`
	ResultDesc    string          `json:"result_desc"`
	ExternalID    string          `json:"external_transaction_id"`
	ReceiptNumber string          `json:"receipt_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PhoneNumber   string          `json:"phone_number"`

	// Reference correlates the callback back to a payment intent:
	// CheckoutRequestID for M-Pesa, the transaction reference for Airtel.
	Reference string `json:"correlation_reference"`
}
