package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sapiom "github.com/sapiom/sapiom-go"
)

// recordedRequest captures what the stub service saw for one call.
type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

func stubService(t *testing.T, status int, response interface{}) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			header: r.Header.Clone(),
			body:   body,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(server.Close)
	return server, &seen
}

func TestTransactionsClientCreate(t *testing.T) {
	server, seen := stubService(t, 201, sapiom.Transaction{ID: "tx-1", Status: sapiom.StatusPending})

	client := NewTransactionsClient(&TransactionsConfig{
		URL:          server.URL,
		AuthProvider: APIKeyAuth("sk-test"),
	})

	tx, err := client.Create(context.Background(), &sapiom.TransactionRequest{
		ServiceName: "reports",
		ActionName:  "read",
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, sapiom.StatusPending, tx.Status)

	require.Len(t, *seen, 1)
	call := (*seen)[0]
	assert.Equal(t, "POST", call.method)
	assert.Equal(t, "/transactions", call.path)
	assert.Equal(t, "Bearer sk-test", call.header.Get("Authorization"))
	assert.Equal(t, "application/json", call.header.Get("Content-Type"))
	assert.NotEmpty(t, call.header.Get("Idempotency-Key"))

	var sent sapiom.TransactionRequest
	require.NoError(t, json.Unmarshal(call.body, &sent))
	assert.Equal(t, "reports", sent.ServiceName)
	assert.Equal(t, "read", sent.ActionName)
}

func TestTransactionsClientCreateFreshIdempotencyKeys(t *testing.T) {
	server, seen := stubService(t, 200, sapiom.Transaction{ID: "tx"})
	client := NewTransactionsClient(&TransactionsConfig{URL: server.URL})

	_, err := client.Create(context.Background(), &sapiom.TransactionRequest{ServiceName: "s"})
	require.NoError(t, err)
	_, err = client.Create(context.Background(), &sapiom.TransactionRequest{ServiceName: "s"})
	require.NoError(t, err)

	require.Len(t, *seen, 2)
	first := (*seen)[0].header.Get("Idempotency-Key")
	second := (*seen)[1].header.Get("Idempotency-Key")
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestTransactionsClientGet(t *testing.T) {
	server, seen := stubService(t, 200, sapiom.Transaction{ID: "tx-9", Status: sapiom.StatusAuthorized})
	client := NewTransactionsClient(&TransactionsConfig{URL: server.URL})

	tx, err := client.Get(context.Background(), "tx-9")
	require.NoError(t, err)
	assert.Equal(t, sapiom.StatusAuthorized, tx.Status)

	require.Len(t, *seen, 1)
	assert.Equal(t, "GET", (*seen)[0].method)
	assert.Equal(t, "/transactions/tx-9", (*seen)[0].path)
}

func TestTransactionsClientReauthorizeWithPayment(t *testing.T) {
	server, seen := stubService(t, 200, sapiom.Transaction{
		ID:              "tx-9",
		Status:          sapiom.StatusAuthorized,
		RequiresPayment: true,
	})
	client := NewTransactionsClient(&TransactionsConfig{URL: server.URL})

	tx, err := client.ReauthorizeWithPayment(context.Background(), "tx-9", &sapiom.PaymentData{
		Scheme: "exact",
		Amount: "100",
		PayTo:  "0x1",
	})
	require.NoError(t, err)
	assert.True(t, tx.RequiresPayment)

	require.Len(t, *seen, 1)
	call := (*seen)[0]
	assert.Equal(t, "POST", call.method)
	assert.Equal(t, "/transactions/tx-9/reauthorize", call.path)

	var body map[string]sapiom.PaymentData
	require.NoError(t, json.Unmarshal(call.body, &body))
	assert.Equal(t, "100", body["paymentData"].Amount)
}

func TestTransactionsClientComplete(t *testing.T) {
	server, seen := stubService(t, 200, sapiom.CompleteResult{FactID: "fact-1"})
	client := NewTransactionsClient(&TransactionsConfig{URL: server.URL})

	result, err := client.Complete(context.Background(), "tx-9", &sapiom.CompleteRequest{Outcome: "success"})
	require.NoError(t, err)
	assert.Equal(t, "fact-1", result.FactID)

	require.Len(t, *seen, 1)
	assert.Equal(t, "/transactions/tx-9/complete", (*seen)[0].path)
}

func TestTransactionsClientServiceError(t *testing.T) {
	server, _ := stubService(t, 500, map[string]string{"error": "boom"})
	client := NewTransactionsClient(&TransactionsConfig{URL: server.URL})

	_, err := client.Get(context.Background(), "tx-err")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
