package provider

import "fmt"

// FailureKind classifies gateway and settlement failures. Callers make
// retry decisions by reading the kind, never by inspecting provider
// message text.
type FailureKind string

const (
	// FailureAuthentication: provider token could not be obtained.
	// Retried on the next scheduled cycle, never inline.
	FailureAuthentication FailureKind = "authentication_failure"

	// FailureNetwork: timeout or connection error. Bounded retry with
	// backoff at the call site.
	FailureNetwork FailureKind = "network_failure"

	// FailureProviderRejected: business decline. Terminal for the
	// attempt; feeds the dunning engine.
	FailureProviderRejected FailureKind = "provider_rejected"

	// FailureValidationMismatch: callback amount/reference inconsistent
	// with the resolved intent. Held for manual review.
	FailureValidationMismatch FailureKind = "validation_mismatch"

	// FailureUnresolvedReference: callback matched no known intent.
	FailureUnresolvedReference FailureKind = "unresolved_reference"

	// FailureDuplicateEvent: dedup hit; processed as a no-op.
	FailureDuplicateEvent FailureKind = "duplicate_event"
)

// Error is the gateway error type carrying the canonical failure kind
// alongside the provider's own code and message.
type Error struct {
	Kind    FailureKind `json:"kind"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details string      `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether a fresh attempt against the provider could
// succeed without operator intervention.
func (e *Error) Retryable() bool {
	return e.Kind == FailureNetwork || e.Kind == FailureAuthentication
}

// NewError builds a gateway error.
func NewError(kind FailureKind, code, message, details string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Details: details}
}
