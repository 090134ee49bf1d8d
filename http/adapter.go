package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	sapiom "github.com/sapiom/sapiom-go"
)

// ============================================================================
// net/http Transport Adapter
// ============================================================================

// Adapter translates the generic request envelope to net/http and back, and
// supports interceptor chains. Implements sapiom.InterceptableTransport.
type Adapter struct {
	client *http.Client

	mu               sync.Mutex
	nextID           int
	reqInterceptors  []requestEntry
	respInterceptors []responseEntry
}

type requestEntry struct {
	id int
	fn sapiom.RequestInterceptor
}

type responseEntry struct {
	id        int
	onSuccess sapiom.ResponseInterceptor
	onError   sapiom.ErrorInterceptor
}

// NewAdapter wraps client. A nil client uses http.DefaultClient.
func NewAdapter(client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{client: client}
}

// AddRequestInterceptor registers fn and returns its cleanup.
func (a *Adapter) AddRequestInterceptor(fn sapiom.RequestInterceptor) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.reqInterceptors = append(a.reqInterceptors, requestEntry{id: id, fn: fn})
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		for i, entry := range a.reqInterceptors {
			if entry.id == id {
				a.reqInterceptors = append(a.reqInterceptors[:i], a.reqInterceptors[i+1:]...)
				break
			}
		}
		a.mu.Unlock()
	}
}

// AddResponseInterceptor registers success/error interceptors and returns
// their cleanup. Either function may be nil.
func (a *Adapter) AddResponseInterceptor(onSuccess sapiom.ResponseInterceptor, onError sapiom.ErrorInterceptor) func() {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.respInterceptors = append(a.respInterceptors, responseEntry{id: id, onSuccess: onSuccess, onError: onError})
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		for i, entry := range a.respInterceptors {
			if entry.id == id {
				a.respInterceptors = append(a.respInterceptors[:i], a.respInterceptors[i+1:]...)
				break
			}
		}
		a.mu.Unlock()
	}
}

func (a *Adapter) snapshot() ([]requestEntry, []responseEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reqs := make([]requestEntry, len(a.reqInterceptors))
	copy(reqs, a.reqInterceptors)
	resps := make([]responseEntry, len(a.respInterceptors))
	copy(resps, a.respInterceptors)
	return reqs, resps
}

// Request runs the interceptor chain around one send. Non-2xx statuses are
// raised as *sapiom.RequestError; an error interceptor returning a response
// recovers the failure, returning (nil, nil) lets it propagate.
func (a *Adapter) Request(ctx context.Context, req *sapiom.Request) (*sapiom.Response, error) {
	reqs, resps := a.snapshot()

	current := req
	for _, entry := range reqs {
		next, err := entry.fn(ctx, current)
		if err != nil {
			return nil, err
		}
		if next != nil {
			current = next
		}
	}

	resp, err := a.send(ctx, current)
	if err == nil {
		for _, entry := range resps {
			if entry.onSuccess == nil {
				continue
			}
			next, err := entry.onSuccess(ctx, current, resp)
			if err != nil {
				return nil, err
			}
			if next != nil {
				resp = next
			}
		}
		return resp, nil
	}

	for _, entry := range resps {
		if entry.onError == nil {
			continue
		}
		recovered, handleErr := entry.onError(ctx, current, err)
		if handleErr != nil {
			return nil, handleErr
		}
		if recovered != nil {
			return recovered, nil
		}
	}
	return nil, err
}

// send performs the raw HTTP exchange without interceptors.
func (a *Adapter) send(ctx context.Context, req *sapiom.Request) (*sapiom.Response, error) {
	target := req.URL
	if len(req.Params) > 0 {
		parsed, err := url.Parse(req.URL)
		if err != nil {
			return nil, &sapiom.RequestError{Message: fmt.Sprintf("invalid request URL: %v", err), Request: req}
		}
		query := parsed.Query()
		for k, v := range req.Params {
			query.Set(k, v)
		}
		parsed.RawQuery = query.Encode()
		target = parsed.String()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &sapiom.RequestError{Message: fmt.Sprintf("failed to build request: %v", err), Request: req}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.client.Do(httpReq)
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

func flattenHeader(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for k, values := range header {
		if len(values) > 0 {
			out[k] = values[0]
		}
	}
	return out
}

var _ sapiom.InterceptableTransport = (*Adapter)(nil)
