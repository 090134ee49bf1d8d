package sapiom

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthHandler(api TransactionsAPI, opts ...Option) *AuthorizationHandler {
	config := defaultConfig()
	config.AuthorizationTimeout = 500 * time.Millisecond
	config.PollingInterval = 5 * time.Millisecond
	for _, opt := range opts {
		opt(&config)
	}
	poller := NewTransactionPoller(api, config.AuthorizationTimeout, config.PollingInterval, config.Logger)
	return NewAuthorizationHandler(api, poller, config)
}

func testRequest() *Request {
	return &Request{
		Method: "GET",
		URL:    "https://api.example.com/v1/reports",
		Headers: map[string]string{
			"Accept": "application/json",
		},
	}
}

func TestAuthorizeImmediateAuthorization(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{ID: "tx-fast", Status: StatusAuthorized}, nil
		},
	}

	var successCalls []string
	handler := newAuthHandler(api, WithOnAuthorizationSuccess(func(id, url string) {
		successCalls = append(successCalls, id)
	}))

	original := testRequest()
	out, err := handler.Authorize(context.Background(), original)
	require.NoError(t, err)

	id, ok := GetHeader(out.Headers, TransactionIDHeader)
	require.True(t, ok)
	assert.Equal(t, "tx-fast", id)

	// The caller's request is untouched; the handler works on a clone.
	_, ok = GetHeader(original.Headers, TransactionIDHeader)
	assert.False(t, ok)

	// Terminal at create time: no polling.
	creates, gets, _, _ := api.counts()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 0, gets)
	assert.Equal(t, []string{"tx-fast"}, successCalls)
}

func TestAuthorizePendingThenAuthorized(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{ID: "tx-slow", Status: StatusPending}, nil
		},
		getFn: func(ctx context.Context, id string) (*Transaction, error) {
			return &Transaction{ID: id, Status: StatusAuthorized}, nil
		},
	}

	var events []string
	handler := newAuthHandler(api,
		WithOnAuthorizationPending(func(id, url string) { events = append(events, "pending:"+id) }),
		WithOnAuthorizationSuccess(func(id, url string) { events = append(events, "success:"+id) }),
	)

	out, err := handler.Authorize(context.Background(), testRequest())
	require.NoError(t, err)

	id, _ := GetHeader(out.Headers, TransactionIDHeader)
	assert.Equal(t, "tx-slow", id)
	assert.Equal(t, []string{"pending:tx-slow", "success:tx-slow"}, events)
}

func TestAuthorizeDeniedRaises(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{
				ID:       "tx-no",
				Status:   StatusDenied,
				Metadata: map[string]interface{}{"reason": "budget exhausted"},
			}, nil
		},
	}

	var deniedCalls int
	handler := newAuthHandler(api, WithOnAuthorizationDenied(func(id, url string) {
		deniedCalls++
	}))

	out, err := handler.Authorize(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, out)

	var denied *AuthorizationDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "tx-no", denied.TransactionID)
	assert.Equal(t, "budget exhausted", denied.Reason)
	assert.Equal(t, 1, deniedCalls)
}

func TestAuthorizeDeniedSuppressed(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{ID: "tx-no", Status: StatusCancelled}, nil
		},
	}
	handler := newAuthHandler(api, WithRaiseOnDenied(false))

	out, err := handler.Authorize(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotNil(t, out)

	// Passed through without a transaction header.
	_, ok := GetHeader(out.Headers, TransactionIDHeader)
	assert.False(t, ok)
}

func TestAuthorizeTimeoutRaisesTimeoutError(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{ID: "tx-stuck", Status: StatusPreparing}, nil
		},
		getFn: func(ctx context.Context, id string) (*Transaction, error) {
			return &Transaction{ID: id, Status: StatusPreparing}, nil
		},
	}
	handler := newAuthHandler(api, WithAuthorizationTimeout(100*time.Millisecond))

	_, err := handler.Authorize(context.Background(), testRequest())
	require.Error(t, err)

	var timeout *AuthorizationTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "tx-stuck", timeout.TransactionID)

	var denied *AuthorizationDeniedError
	assert.False(t, errors.As(err, &denied), "timeout must not be reported as a denial")
}

func TestAuthorizePaymentRetryPassesThrough(t *testing.T) {
	api := &mockTransactionsAPI{}
	handler := newAuthHandler(api)

	req := testRequest()
	req.Metadata.PaymentRetry = true

	out, err := handler.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, req, out)

	creates, gets, _, _ := api.counts()
	assert.Zero(t, creates)
	assert.Zero(t, gets)
}

func TestAuthorizeSkipOverride(t *testing.T) {
	api := &mockTransactionsAPI{}
	handler := newAuthHandler(api)

	req := testRequest()
	req.Overrides = &Overrides{SkipAuthorization: true}

	out, err := handler.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, req, out)

	creates, _, _, _ := api.counts()
	assert.Zero(t, creates)
}

func TestAuthorizeEndpointRules(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{ID: "tx-rule", Status: StatusAuthorized}, nil
		},
	}
	handler := newAuthHandler(api, WithAuthorizedEndpoints(
		EndpointRule{Methods: []string{"POST", "PUT"}, PathPattern: "/v1/orders/**", ServiceName: "orders", ActionName: "write"},
	))

	// Non-matching method: no authorization.
	get := testRequest()
	get.URL = "https://api.example.com/v1/orders/42"
	out, err := handler.Authorize(context.Background(), get)
	require.NoError(t, err)
	_, ok := GetHeader(out.Headers, TransactionIDHeader)
	assert.False(t, ok)
	creates, _, _, _ := api.counts()
	assert.Zero(t, creates)

	// Matching method and path: authorized with the rule's identity.
	post := testRequest()
	post.Method = "POST"
	post.URL = "https://api.example.com/v1/orders/42/items"
	out, err = handler.Authorize(context.Background(), post)
	require.NoError(t, err)
	_, ok = GetHeader(out.Headers, TransactionIDHeader)
	assert.True(t, ok)

	api.mu.Lock()
	created := api.createRequests[len(api.createRequests)-1]
	api.mu.Unlock()
	assert.Equal(t, "orders", created.ServiceName)
	assert.Equal(t, "write", created.ActionName)
	assert.Equal(t, true, created.Metadata["preemptiveAuthorization"])
	require.NotNil(t, created.RequestFacts)
	assert.Equal(t, "POST", created.RequestFacts.Method)
}

func TestAuthorizeOverridesTakePrecedenceOverRule(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{ID: "tx-ovr", Status: StatusAuthorized}, nil
		},
	}
	handler := newAuthHandler(api, WithAuthorizedEndpoints(
		EndpointRule{PathPattern: "/v1/reports", ServiceName: "reports", ActionName: "read"},
	))

	req := testRequest()
	req.Overrides = &Overrides{
		ServiceName: "custom-service",
		AgentID:     "agent-7",
		Qualifiers:  map[string]string{"tier": "gold"},
	}

	_, err := handler.Authorize(context.Background(), req)
	require.NoError(t, err)

	api.mu.Lock()
	created := api.createRequests[0]
	api.mu.Unlock()
	assert.Equal(t, "custom-service", created.ServiceName)
	assert.Equal(t, "read", created.ActionName)
	assert.Equal(t, "agent-7", created.AgentID)
	assert.Equal(t, map[string]string{"tier": "gold"}, created.Qualifiers)
}

func TestAuthorizeOverrideForcesAuthorizationOutsideRules(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{ID: "tx-forced", Status: StatusAuthorized}, nil
		},
	}
	handler := newAuthHandler(api, WithAuthorizedEndpoints(
		EndpointRule{PathPattern: "/v1/other"},
	))

	req := testRequest()
	req.Overrides = &Overrides{ServiceName: "side-channel"}

	out, err := handler.Authorize(context.Background(), req)
	require.NoError(t, err)
	_, ok := GetHeader(out.Headers, TransactionIDHeader)
	assert.True(t, ok, "override metadata must force authorization despite no rule match")
}

func TestAuthorizeServiceNameFallsBackToHost(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{ID: "tx-host", Status: StatusAuthorized}, nil
		},
	}
	handler := newAuthHandler(api)

	_, err := handler.Authorize(context.Background(), testRequest())
	require.NoError(t, err)

	api.mu.Lock()
	created := api.createRequests[0]
	api.mu.Unlock()
	assert.Equal(t, "api.example.com", created.ServiceName)
}

func TestAuthorizeExistingHeaderPositive(t *testing.T) {
	api := &mockTransactionsAPI{
		getFn: func(ctx context.Context, id string) (*Transaction, error) {
			return &Transaction{ID: id, Status: StatusCompleted}, nil
		},
	}
	handler := newAuthHandler(api)

	req := testRequest()
	req.Headers = SetHeader(req.Headers, TransactionIDHeader, "tx-carried")

	out, err := handler.Authorize(context.Background(), req)
	require.NoError(t, err)

	id, _ := GetHeader(out.Headers, TransactionIDHeader)
	assert.Equal(t, "tx-carried", id)

	// Validated, never re-created.
	creates, gets, _, _ := api.counts()
	assert.Zero(t, creates)
	assert.Equal(t, 1, gets)
}

func TestAuthorizeExistingHeaderDeniedSuppressedStripsHeader(t *testing.T) {
	api := &mockTransactionsAPI{
		getFn: func(ctx context.Context, id string) (*Transaction, error) {
			return &Transaction{ID: id, Status: StatusDenied}, nil
		},
	}
	handler := newAuthHandler(api, WithRaiseOnDenied(false))

	req := testRequest()
	req.Headers = SetHeader(req.Headers, TransactionIDHeader, "tx-stale")

	out, err := handler.Authorize(context.Background(), req)
	require.NoError(t, err)

	_, ok := GetHeader(out.Headers, TransactionIDHeader)
	assert.False(t, ok, "a suppressed denial must not leave a stale header behind")
}

func TestAuthorizeUnknownStatus(t *testing.T) {
	api := &mockTransactionsAPI{
		createFn: func(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
			return &Transaction{ID: "tx-weird", Status: TransactionStatus("EXPLODED")}, nil
		},
	}
	handler := newAuthHandler(api)

	_, err := handler.Authorize(context.Background(), testRequest())
	require.Error(t, err)

	var unexpected *UnexpectedStatusError
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, TransactionStatus("EXPLODED"), unexpected.Status)
}
