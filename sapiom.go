// Package sapiom adds pre-emptive authorization and reactive 402 payment
// settlement to outgoing HTTP calls. Requests pass through an authorization
// handler before they are sent; payment-required responses are settled
// against the remote transactions service and retried once with a payment
// proof. Both behaviors attach to any transport through a small adapter
// contract.
package sapiom

import (
	"context"

	"go.uber.org/zap"
)

// Client wires the authorization handler (request interceptor) and the
// payment handler (response-error interceptor) onto transports. The two
// handlers share the poller and the transactions client but no other
// state; coordination between them travels solely on the
// X-Sapiom-Transaction-Id header.
type Client struct {
	api       TransactionsAPI
	config    Config
	poller    *TransactionPoller
	detectors *DetectorRegistry
	logger    *zap.Logger

	// Authorization and Payment are exposed for adapters that drive the
	// handlers directly instead of through Attach.
	Authorization *AuthorizationHandler
	Payment       *PaymentHandler
}

// NewClient composes the SDK over the given transactions API.
func NewClient(api TransactionsAPI, opts ...Option) *Client {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	poller := NewTransactionPoller(api, config.AuthorizationTimeout, config.PollingInterval, config.Logger)
	detectors := NewDetectorRegistry()

	return &Client{
		api:           api,
		config:        config,
		poller:        poller,
		detectors:     detectors,
		logger:        config.Logger,
		Authorization: NewAuthorizationHandler(api, poller, config),
		Payment:       NewPaymentHandler(api, poller, detectors, config),
	}
}

// Detectors returns the registry so callers can register transport-specific
// payment detectors. Later registrations take priority.
func (c *Client) Detectors() *DetectorRegistry {
	return c.detectors
}

// Attach installs the enabled handlers on transport and returns a detach
// function removing both. Authorization always runs before the request is
// sent; payment handling only after an error response is observed.
func (c *Client) Attach(transport InterceptableTransport) func() {
	var cleanups []func()

	if c.config.AuthorizationEnabled {
		remove := transport.AddRequestInterceptor(func(ctx context.Context, req *Request) (*Request, error) {
			return c.Authorization.Authorize(ctx, req)
		})
		cleanups = append(cleanups, remove)
	}

	if c.config.PaymentEnabled {
		remove := transport.AddResponseInterceptor(nil, func(ctx context.Context, req *Request, cause error) (*Response, error) {
			return c.Payment.HandlePaymentError(ctx, cause, req, transport.Request)
		})
		cleanups = append(cleanups, remove)
	}

	return func() {
		for _, cleanup := range cleanups {
			cleanup()
		}
	}
}

// Do sends one request through transport with both behaviors applied,
// for transports that do not support interceptor chains. The original
// error propagates untouched when the payment handler declines it.
func (c *Client) Do(ctx context.Context, transport Transport, req *Request) (*Response, error) {
	out := req
	if c.config.AuthorizationEnabled {
		authorized, err := c.Authorization.Authorize(ctx, req)
		if err != nil {
			return nil, err
		}
		out = authorized
	}

	resp, err := transport.Request(ctx, out)
	if err == nil {
		return resp, nil
	}

	if c.config.PaymentEnabled {
		handled, handleErr := c.Payment.HandlePaymentError(ctx, err, out, transport.Request)
		if handleErr != nil {
			return nil, handleErr
		}
		if handled != nil {
			return handled, nil
		}
	}

	return nil, err
}

// ReportOutcome posts the outcome of a guarded request back to the
// transactions service. Fire-and-forget: failures are logged, never
// propagated.
func (c *Client) ReportOutcome(ctx context.Context, transactionID, outcome string, responseFacts map[string]interface{}) {
	if transactionID == "" {
		return
	}
	_, err := c.api.Complete(ctx, transactionID, &CompleteRequest{
		Outcome:       outcome,
		ResponseFacts: responseFacts,
	})
	if err != nil {
		c.logger.Warn("failed to report transaction outcome",
			zap.String("transaction_id", transactionID),
			zap.String("outcome", outcome),
			zap.Error(err))
	}
}
