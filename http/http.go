// Package http provides the net/http bindings for the sapiom SDK: the REST
// transactions client, an interceptable transport adapter over *http.Client,
// and a RoundTripper wrapper for transparent use with existing clients.
package http

import (
	"context"
	"io"
	"net/http"

	sapiom "github.com/sapiom/sapiom-go"
)

// ============================================================================
// Convenience constructors
// ============================================================================

// NewClient composes an SDK client over a REST transactions service.
func NewClient(config *TransactionsConfig, opts ...sapiom.Option) *sapiom.Client {
	return sapiom.NewClient(NewTransactionsClient(config), opts...)
}

// ============================================================================
// Convenience request helpers
// ============================================================================

// Do performs req with authorization and payment handling applied.
func Do(ctx context.Context, sdk *sapiom.Client, req *http.Request) (*http.Response, error) {
	client := WrapClient(&http.Client{}, sdk)
	return client.Do(req.WithContext(ctx))
}

// Get performs a GET request with authorization and payment handling.
func Get(ctx context.Context, sdk *sapiom.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	return Do(ctx, sdk, req)
}

// Post performs a POST request with authorization and payment handling.
func Post(ctx context.Context, sdk *sapiom.Client, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return Do(ctx, sdk, req)
}
