package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	sapiom "github.com/sapiom/sapiom-go"
)

// ============================================================================
// HTTP Transactions Client
// ============================================================================

// TransactionsClient talks to the remote transactions service over REST.
// Implements sapiom.TransactionsAPI.
type TransactionsClient struct {
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
}

// AuthProvider generates authentication headers for transactions requests.
type AuthProvider interface {
	// GetAuthHeaders returns headers to attach to every request.
	GetAuthHeaders(ctx context.Context) (map[string]string, error)
}

// APIKeyAuth is an AuthProvider sending a static bearer token.
type APIKeyAuth string

// GetAuthHeaders implements AuthProvider.
func (k APIKeyAuth) GetAuthHeaders(ctx context.Context) (map[string]string, error) {
	return map[string]string{"Authorization": "Bearer " + string(k)}, nil
}

// TransactionsConfig configures the HTTP transactions client.
type TransactionsConfig struct {
	// URL is the base URL of the transactions service (required).
	URL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional).
	AuthProvider AuthProvider

	// Timeout for requests (optional, defaults to 30s).
	Timeout time.Duration
}

// NewTransactionsClient creates a new HTTP transactions client.
func NewTransactionsClient(config *TransactionsConfig) *TransactionsClient {
	if config == nil {
		config = &TransactionsConfig{}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &TransactionsClient{
		url:          config.URL,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
	}
}

// Create registers a new transaction.
func (c *TransactionsClient) Create(ctx context.Context, req *sapiom.TransactionRequest) (*sapiom.Transaction, error) {
	var tx sapiom.Transaction
	headers := map[string]string{
		// The service deduplicates replayed creates by this key.
		"Idempotency-Key": uuid.NewString(),
	}
	if err := c.do(ctx, "POST", "/transactions", headers, req, &tx); err != nil {
		return nil, fmt.Errorf("create transaction failed: %w", err)
	}
	return &tx, nil
}

// Get fetches the current transaction snapshot.
func (c *TransactionsClient) Get(ctx context.Context, id string) (*sapiom.Transaction, error) {
	var tx sapiom.Transaction
	if err := c.do(ctx, "GET", "/transactions/"+id, nil, nil, &tx); err != nil {
		return nil, fmt.Errorf("get transaction %s failed: %w", id, err)
	}
	return &tx, nil
}

// ReauthorizeWithPayment attaches payment terms to an existing transaction.
func (c *TransactionsClient) ReauthorizeWithPayment(ctx context.Context, id string, payment *sapiom.PaymentData) (*sapiom.Transaction, error) {
	var tx sapiom.Transaction
	body := map[string]interface{}{"paymentData": payment}
	if err := c.do(ctx, "POST", "/transactions/"+id+"/reauthorize", nil, body, &tx); err != nil {
		return nil, fmt.Errorf("reauthorize transaction %s failed: %w", id, err)
	}
	return &tx, nil
}

// Complete reports the outcome of the guarded request.
func (c *TransactionsClient) Complete(ctx context.Context, id string, req *sapiom.CompleteRequest) (*sapiom.CompleteResult, error) {
	var result sapiom.CompleteResult
	if err := c.do(ctx, "POST", "/transactions/"+id+"/complete", nil, req, &result); err != nil {
		return nil, fmt.Errorf("complete transaction %s failed: %w", id, err)
	}
	return &result, nil
}

func (c *TransactionsClient) do(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if c.authProvider != nil {
		authHeaders, err := c.authProvider.GetAuthHeaders(ctx)
		if err != nil {
			return fmt.Errorf("failed to get auth headers: %w", err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("transactions service returned %d: %s", resp.StatusCode, string(responseBody))
	}

	if out != nil {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Ensure TransactionsClient implements the API contract.
var _ sapiom.TransactionsAPI = (*TransactionsClient)(nil)
