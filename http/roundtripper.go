package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	sapiom "github.com/sapiom/sapiom-go"
)

// ============================================================================
// HTTP Client Wrapper
// ============================================================================

// WrapClient wraps a standard HTTP client so every request passes through
// pre-request authorization and transparent 402 settlement. The input
// client's transport is reused underneath.
func WrapClient(client *http.Client, sdk *sapiom.Client) *http.Client {
	if client == nil {
		client = http.DefaultClient
	}

	originalTransport := client.Transport
	if originalTransport == nil {
		originalTransport = http.DefaultTransport
	}

	client.Transport = &SapiomRoundTripper{
		Transport: originalTransport,
		SDK:       sdk,
	}
	return client
}

// SapiomRoundTripper implements http.RoundTripper with authorization and
// payment handling applied around the wrapped transport.
type SapiomRoundTripper struct {
	Transport http.RoundTripper
	SDK       *sapiom.Client
}

// RoundTrip implements http.RoundTripper. Denied or timed-out payments
// come back as the synthesized 403 response; unhandled failures surface
// the original response unchanged.
func (t *SapiomRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	envelope, err := toEnvelope(req)
	if err != nil {
		return nil, err
	}

	inner := &roundTripperTransport{rt: t.Transport, proto: req}

	resp, err := t.SDK.Do(req.Context(), inner, envelope)
	if err != nil {
		// Non-2xx statuses travel as normalized errors inside the SDK;
		// at the RoundTripper boundary they are plain responses again.
		if reqErr, ok := err.(*sapiom.RequestError); ok && reqErr.Response != nil {
			return fromEnvelope(reqErr.Response, req), nil
		}
		return nil, err
	}
	return fromEnvelope(resp, req), nil
}

// roundTripperTransport adapts an http.RoundTripper to the envelope
// contract, raising *sapiom.RequestError for non-2xx statuses.
type roundTripperTransport struct {
	rt    http.RoundTripper
	proto *http.Request
}

func (t *roundTripperTransport) Request(ctx context.Context, req *sapiom.Request) (*sapiom.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, &sapiom.RequestError{Message: fmt.Sprintf("failed to build request: %v", err), Request: req}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := t.rt.RoundTrip(httpReq)
	if err != nil {
		return nil, &sapiom.RequestError{Message: fmt.Sprintf("request failed: %v", err), Request: req}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &sapiom.RequestError{Message: fmt.Sprintf("failed to read response body: %v", err), Status: httpResp.StatusCode, Request: req}
	}

	envelope := &sapiom.Response{
		Status:     httpResp.StatusCode,
		StatusText: httpResp.Status,
		Headers:    flattenHeader(httpResp.Header),
		Body:       respBody,
	}

	if httpResp.StatusCode >= 400 {
		return nil, &sapiom.RequestError{
			Message:  fmt.Sprintf("request failed with status %d", httpResp.StatusCode),
			Status:   httpResp.StatusCode,
			Data:     respBody,
			Headers:  envelope.Headers,
			Request:  req,
			Response: envelope,
		}
	}
	return envelope, nil
}

// toEnvelope converts a native request into the transport-agnostic shape,
// buffering the body so the payment handler can replay it on the retry leg.
func toEnvelope(req *http.Request) (*sapiom.Request, error) {
	envelope := &sapiom.Request{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: flattenHeader(req.Header),
	}

	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		envelope.Body = data
	}

	if overrides, ok := OverridesFromContext(req.Context()); ok {
		envelope.Overrides = overrides
	}
	return envelope, nil
}

// fromEnvelope converts a response envelope back into a native response.
func fromEnvelope(resp *sapiom.Response, req *http.Request) *http.Response {
	header := make(http.Header, len(resp.Headers))
	for k, v := range resp.Headers {
		header.Set(k, v)
	}

	return &http.Response{
		StatusCode:    resp.Status,
		Status:        fmt.Sprintf("%d %s", resp.Status, http.StatusText(resp.Status)),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}
}

// ============================================================================
// Per-request Overrides via Context
// ============================================================================

type overridesKey struct{}

// WithOverrides attaches per-call overrides to a request context; the
// RoundTripper forwards them on the envelope's side channel.
func WithOverrides(ctx context.Context, overrides *sapiom.Overrides) context.Context {
	return context.WithValue(ctx, overridesKey{}, overrides)
}

// OverridesFromContext extracts overrides set via WithOverrides.
func OverridesFromContext(ctx context.Context) (*sapiom.Overrides, bool) {
	overrides, ok := ctx.Value(overridesKey{}).(*sapiom.Overrides)
	return overrides, ok
}
