package sapiom

import (
	"time"
)

// TransactionStatus is the lifecycle state of a remote transaction.
// All transitions happen server-side; the client only observes snapshots.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusPreparing  TransactionStatus = "PREPARING"
	StatusAuthorized TransactionStatus = "AUTHORIZED"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusDenied     TransactionStatus = "DENIED"
	StatusCancelled  TransactionStatus = "CANCELLED"
)

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusAuthorized, StatusCompleted, StatusDenied, StatusCancelled:
		return true
	}
	return false
}

// IsPositive reports whether the status allows the guarded request to proceed.
func (s TransactionStatus) IsPositive() bool {
	return s == StatusAuthorized || s == StatusCompleted
}

// IsNegative reports whether the status is a terminal denial.
// DENIED and CANCELLED are equivalent from the client's perspective.
func (s TransactionStatus) IsNegative() bool {
	return s == StatusDenied || s == StatusCancelled
}

// IsKnown reports whether the status is part of the protocol enum.
// Anything else is treated as a contract violation, not retried.
func (s TransactionStatus) IsKnown() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusAuthorized, StatusCompleted, StatusDenied, StatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is the settlement sub-state of a transaction's payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusSettled    PaymentStatus = "SETTLED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// PaymentInfo is the payment sub-record of a transaction.
// AuthorizationPayload is an opaque proof; it is only present once the
// payment has been authorized remotely. When it is a JSON object rather
// than a string, the SDK base64-encodes its serialization for the wire.
type PaymentInfo struct {
	Status               PaymentStatus          `json:"status,omitempty"`
	AuthorizationPayload interface{}            `json:"authorizationPayload,omitempty"`
	Requirements         map[string]interface{} `json:"requirements,omitempty"`
}

// Transaction is a read-only snapshot of a remote authorization/payment
// decision. The client never mutates a snapshot; it requests new ones.
type Transaction struct {
	ID              string                 `json:"id"`
	Status          TransactionStatus      `json:"status"`
	RequiresPayment bool                   `json:"requiresPayment"`
	Payment         *PaymentInfo           `json:"payment,omitempty"`
	ServiceName     string                 `json:"serviceName,omitempty"`
	ActionName      string                 `json:"actionName,omitempty"`
	ResourceName    string                 `json:"resourceName,omitempty"`
	Qualifiers      map[string]string      `json:"qualifiers,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"createdAt,omitempty"`
	UpdatedAt       time.Time              `json:"updatedAt,omitempty"`
}

// HasAuthorizationPayload reports whether an authorized payment proof is
// attached to the snapshot.
func (t *Transaction) HasAuthorizationPayload() bool {
	return t != nil && t.Payment != nil && t.Payment.AuthorizationPayload != nil
}

// TransactionRequest is the create-transaction payload sent to the remote
// service. Identifying fields and qualifiers are pass-through context; the
// SDK forwards them without interpreting them.
type TransactionRequest struct {
	ServiceName  string                 `json:"serviceName"`
	ActionName   string                 `json:"actionName,omitempty"`
	ResourceName string                 `json:"resourceName,omitempty"`
	AgentID      string                 `json:"agentId,omitempty"`
	TraceID      string                 `json:"traceId,omitempty"`
	Qualifiers   map[string]string      `json:"qualifiers,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	RequestFacts *RequestFacts          `json:"requestFacts,omitempty"`
	PaymentData  *PaymentData           `json:"paymentData,omitempty"`
}

// PaymentData is the normalized payment-requirement structure extracted
// from a 402 response by a detector. Amount and PayTo come from the
// selected x402 accepts entry; Raw preserves the full requirement for the
// remote service.
type PaymentData struct {
	Scheme  string                 `json:"scheme,omitempty"`
	Network string                 `json:"network,omitempty"`
	Asset   string                 `json:"asset,omitempty"`
	Amount  string                 `json:"amount,omitempty"`
	PayTo   string                 `json:"payTo,omitempty"`
	Raw     map[string]interface{} `json:"raw,omitempty"`
}

// CompleteRequest reports the outcome of a guarded request back to the
// remote service. Sent fire-and-forget; failures are logged, not propagated.
type CompleteRequest struct {
	Outcome       string                 `json:"outcome"`
	ResponseFacts map[string]interface{} `json:"responseFacts,omitempty"`
}

// CompleteResult is the remote service's acknowledgement of a completion.
type CompleteResult struct {
	Transaction *Transaction `json:"transaction,omitempty"`
	FactID      string       `json:"factId,omitempty"`
	CostID      string       `json:"costId,omitempty"`
}

// RequestFacts is the sanitized description of an outgoing request sent
// alongside a create-transaction call. Headers are stripped of credential
// material before inclusion.
type RequestFacts struct {
	RequestID   string            `json:"requestId"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Host        string            `json:"host,omitempty"`
	Path        string            `json:"path,omitempty"`
	Query       string            `json:"query,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	HasBody     bool              `json:"hasBody"`
	BodyBytes   int               `json:"bodyBytes,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	CallSite    string            `json:"callSite,omitempty"`
	ClientAgent string            `json:"clientAgent,omitempty"`
}
