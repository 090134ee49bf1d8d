package sapiom

import (
	"fmt"
	"time"
)

// Common error codes carried by SDK errors.
const (
	ErrCodeAuthorizationDenied  = "authorization_denied"
	ErrCodeAuthorizationTimeout = "authorization_timeout"
	ErrCodeMissingPayload       = "missing_authorization_payload"
	ErrCodeUnexpectedStatus     = "unexpected_transaction_status"
)

// AuthorizationDeniedError is raised when a transaction reaches DENIED or
// CANCELLED before the request is sent. Recoverable by the caller and
// suppressible via RaiseOnDenied=false.
type AuthorizationDeniedError struct {
	TransactionID string
	Endpoint      string
	Reason        string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: transaction %s denied for %s: %s", ErrCodeAuthorizationDenied, e.TransactionID, e.Endpoint, e.Reason)
	}
	return fmt.Sprintf("%s: transaction %s denied for %s", ErrCodeAuthorizationDenied, e.TransactionID, e.Endpoint)
}

// AuthorizationTimeoutError is raised when polling exceeds the configured
// window. Always raised; proceeding unauthorized after a timeout would be
// unsafe, so there is no suppression switch for it.
type AuthorizationTimeoutError struct {
	TransactionID string
	Endpoint      string
	Timeout       time.Duration
}

func (e *AuthorizationTimeoutError) Error() string {
	return fmt.Sprintf("%s: transaction %s not authorized within %s for %s", ErrCodeAuthorizationTimeout, e.TransactionID, e.Timeout, e.Endpoint)
}

// MissingPayloadError signals an authorized transaction without a payment
// proof. This is a contract violation between client and remote service,
// never a business denial, and is therefore fatal and re-thrown.
type MissingPayloadError struct {
	TransactionID string
}

func (e *MissingPayloadError) Error() string {
	return fmt.Sprintf("%s: transaction %s is authorized but carries no authorization payload", ErrCodeMissingPayload, e.TransactionID)
}

// UnexpectedStatusError signals a status outside the protocol enum.
// Fatal, thrown immediately, not retried.
type UnexpectedStatusError struct {
	TransactionID string
	Status        TransactionStatus
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: transaction %s has unexpected status %q", ErrCodeUnexpectedStatus, e.TransactionID, e.Status)
}
