package sapiom

import (
	"context"
	"fmt"
	"sync"
)

// mockTransactionsAPI is the in-memory test double for the remote service.
// Function fields override individual operations; counters track call
// volume for the dedup and retry invariants.
type mockTransactionsAPI struct {
	mu sync.Mutex

	createFn func(ctx context.Context, req *TransactionRequest) (*Transaction, error)
	getFn    func(ctx context.Context, id string) (*Transaction, error)
	reauthFn func(ctx context.Context, id string, payment *PaymentData) (*Transaction, error)

	createCalls   int
	getCalls      int
	reauthCalls   int
	completeCalls int

	createRequests []*TransactionRequest
	completeIDs    []string
}

func (m *mockTransactionsAPI) Create(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
	m.mu.Lock()
	m.createCalls++
	m.createRequests = append(m.createRequests, req)
	fn := m.createFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &Transaction{ID: "tx-created", Status: StatusAuthorized}, nil
}

func (m *mockTransactionsAPI) Get(ctx context.Context, id string) (*Transaction, error) {
	m.mu.Lock()
	m.getCalls++
	fn := m.getFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return nil, fmt.Errorf("no transaction %s", id)
}

func (m *mockTransactionsAPI) ReauthorizeWithPayment(ctx context.Context, id string, payment *PaymentData) (*Transaction, error) {
	m.mu.Lock()
	m.reauthCalls++
	fn := m.reauthFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, id, payment)
	}
	return &Transaction{ID: id, Status: StatusAuthorized, RequiresPayment: true}, nil
}

func (m *mockTransactionsAPI) Complete(ctx context.Context, id string, req *CompleteRequest) (*CompleteResult, error) {
	m.mu.Lock()
	m.completeCalls++
	m.completeIDs = append(m.completeIDs, id)
	m.mu.Unlock()
	return &CompleteResult{}, nil
}

func (m *mockTransactionsAPI) counts() (create, get, reauth, complete int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls, m.getCalls, m.reauthCalls, m.completeCalls
}

var _ TransactionsAPI = (*mockTransactionsAPI)(nil)
