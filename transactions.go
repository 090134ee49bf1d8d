package sapiom

import "context"

// TransactionsAPI is the remote transaction surface the handlers consume.
// The SDK ships an HTTP implementation in the http subpackage; tests and
// alternative transports provide their own.
type TransactionsAPI interface {
	// Create registers a new transaction and returns its first snapshot.
	Create(ctx context.Context, req *TransactionRequest) (*Transaction, error)

	// Get fetches the current snapshot of a transaction.
	Get(ctx context.Context, id string) (*Transaction, error)

	// ReauthorizeWithPayment attaches payment terms to an existing
	// transaction, preserving its id, and returns the updated snapshot.
	ReauthorizeWithPayment(ctx context.Context, id string, payment *PaymentData) (*Transaction, error)

	// Complete reports the outcome of the guarded request. Callers treat
	// this as fire-and-forget; failures are logged, not propagated.
	Complete(ctx context.Context, id string, req *CompleteRequest) (*CompleteResult, error)
}
