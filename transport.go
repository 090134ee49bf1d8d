package sapiom

import "context"

// Transport sends a request envelope and returns a response envelope.
// Failures (transport faults and non-2xx statuses alike) are raised as a
// normalized *RequestError so detectors can interpret them uniformly.
type Transport interface {
	Request(ctx context.Context, req *Request) (*Response, error)
}

// RequestInterceptor observes and may replace an outgoing request before
// it is sent. Returning an error aborts the request.
type RequestInterceptor func(ctx context.Context, req *Request) (*Request, error)

// ResponseInterceptor observes and may replace a successful response.
type ResponseInterceptor func(ctx context.Context, req *Request, resp *Response) (*Response, error)

// ErrorInterceptor observes a failed request. Returning a non-nil response
// recovers from the failure; returning (nil, nil) lets the original error
// propagate.
type ErrorInterceptor func(ctx context.Context, req *Request, cause error) (*Response, error)

// InterceptableTransport is implemented by adapters that support
// interceptor chains. Each Add call returns a cleanup function that
// detaches the interceptor it registered.
type InterceptableTransport interface {
	Transport
	AddRequestInterceptor(fn RequestInterceptor) func()
	AddResponseInterceptor(onSuccess ResponseInterceptor, onError ErrorInterceptor) func()
}
