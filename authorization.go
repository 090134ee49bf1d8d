package sapiom

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
)

// AuthorizationHandler is the pre-request state machine: it decides whether
// an outgoing request may proceed and under which transaction id. Attach it
// as a request interceptor, or call Authorize directly from an adapter.
type AuthorizationHandler struct {
	api    TransactionsAPI
	poller *TransactionPoller
	config Config
	logger *zap.Logger
}

// NewAuthorizationHandler builds a handler sharing poller with the payment
// side so concurrent waits on one transaction join the same poll.
func NewAuthorizationHandler(api TransactionsAPI, poller *TransactionPoller, config Config) *AuthorizationHandler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationHandler{
		api:    api,
		poller: poller,
		config: config,
		logger: logger,
	}
}

// Authorize runs the pre-request decision ladder and returns the request to
// send, possibly with the transaction header attached. It blocks while a
// pending transaction is polled. A denial raises AuthorizationDeniedError
// unless RaiseOnDenied is false; a poll timeout always raises
// AuthorizationTimeoutError.
func (h *AuthorizationHandler) Authorize(ctx context.Context, req *Request) (*Request, error) {
	// A payment retry leg was already validated by the payment handler.
	if req.Metadata.PaymentRetry {
		return req, nil
	}

	// An earlier leg may have attached a transaction; validate it instead
	// of creating another.
	if id, ok := GetHeader(req.Headers, TransactionIDHeader); ok && id != "" {
		return h.validateExisting(ctx, req, id)
	}

	if req.Overrides != nil && req.Overrides.SkipAuthorization {
		return req, nil
	}

	rule, required := h.requiresAuthorization(req)
	if !required {
		return req, nil
	}

	tx, err := h.createTransaction(ctx, req, rule)
	if err != nil {
		return nil, err
	}

	return h.resolveCreated(ctx, req, tx)
}

// validateExisting re-checks a transaction id carried on the request.
func (h *AuthorizationHandler) validateExisting(ctx context.Context, req *Request, id string) (*Request, error) {
	tx, err := h.api.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", id, err)
	}

	switch {
	case tx.Status.IsPositive():
		// Header already present; nothing to attach.
		return req, nil
	case tx.Status.IsNegative():
		return h.handleDenied(req, tx, true)
	case tx.Status.IsKnown():
		return h.awaitAuthorization(ctx, req, tx, true)
	default:
		return nil, &UnexpectedStatusError{TransactionID: tx.ID, Status: tx.Status}
	}
}

// requiresAuthorization applies the configured endpoint rules. Override
// metadata forces authorization; an empty rule list authorizes everything.
func (h *AuthorizationHandler) requiresAuthorization(req *Request) (*EndpointRule, bool) {
	if hasOverrideMetadata(req.Overrides) {
		rule, _ := h.matchEndpoint(req)
		return rule, true
	}
	if len(h.config.AuthorizedEndpoints) == 0 {
		return nil, true
	}
	return h.matchEndpoint(req)
}

func (h *AuthorizationHandler) matchEndpoint(req *Request) (*EndpointRule, bool) {
	reqPath := req.URL
	if parsed, err := url.Parse(req.URL); err == nil && parsed.Path != "" {
		reqPath = parsed.Path
	}
	for i := range h.config.AuthorizedEndpoints {
		rule := &h.config.AuthorizedEndpoints[i]
		if matchMethod(rule, req.Method) && matchPath(rule.PathPattern, reqPath) {
			return rule, true
		}
	}
	return nil, false
}

func matchMethod(rule *EndpointRule, method string) bool {
	if len(rule.Methods) > 0 {
		for _, m := range rule.Methods {
			if strings.EqualFold(m, method) {
				return true
			}
		}
		return false
	}
	if rule.Method == "" || rule.Method == "*" {
		return true
	}
	return strings.EqualFold(rule.Method, method)
}

func matchPath(pattern, reqPath string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/**") {
		return strings.HasPrefix(reqPath, strings.TrimSuffix(pattern, "/**"))
	}
	if ok, err := path.Match(pattern, reqPath); err == nil && ok {
		return true
	}
	return pattern == reqPath
}

// createTransaction registers the pending decision with the remote service.
// Precedence for identifying fields: per-call override, then matched rule,
// then derived defaults.
func (h *AuthorizationHandler) createTransaction(ctx context.Context, req *Request, rule *EndpointRule) (*Transaction, error) {
	txReq := &TransactionRequest{
		RequestFacts: buildRequestFacts(req),
		Metadata:     map[string]interface{}{"preemptiveAuthorization": true},
	}

	if rule != nil {
		txReq.ServiceName = rule.ServiceName
		txReq.ActionName = rule.ActionName
		txReq.Qualifiers = rule.Qualifiers
		for k, v := range rule.Metadata {
			txReq.Metadata[k] = v
		}
	}

	if o := req.Overrides; o != nil {
		if o.ServiceName != "" {
			txReq.ServiceName = o.ServiceName
		}
		if o.ActionName != "" {
			txReq.ActionName = o.ActionName
		}
		if o.ResourceName != "" {
			txReq.ResourceName = o.ResourceName
		}
		if o.AgentID != "" {
			txReq.AgentID = o.AgentID
		}
		if o.TraceID != "" {
			txReq.TraceID = o.TraceID
		}
		if len(o.Qualifiers) > 0 {
			txReq.Qualifiers = o.Qualifiers
		}
		for k, v := range o.Metadata {
			txReq.Metadata[k] = v
		}
	}

	if txReq.ServiceName == "" {
		txReq.ServiceName = deriveServiceName(req.URL)
	}

	tx, err := h.api.Create(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// resolveCreated inspects the snapshot returned by create and either
// attaches the header, waits, or raises.
func (h *AuthorizationHandler) resolveCreated(ctx context.Context, req *Request, tx *Transaction) (*Request, error) {
	switch {
	case tx.Status.IsNegative():
		return h.handleDenied(req, tx, false)
	case tx.Status.IsPositive():
		return h.attach(req, tx), nil
	case tx.Status.IsKnown():
		h.config.Hooks.authorizationPending(tx.ID, req.URL)
		return h.awaitAuthorization(ctx, req, tx, false)
	default:
		return nil, &UnexpectedStatusError{TransactionID: tx.ID, Status: tx.Status}
	}
}

// awaitAuthorization delegates to the shared poller. headerPresent tells
// the denial path whether a stale header must be stripped on suppressed
// denials.
func (h *AuthorizationHandler) awaitAuthorization(ctx context.Context, req *Request, tx *Transaction, headerPresent bool) (*Request, error) {
	result, err := h.poller.WaitForAuthorization(ctx, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("authorization poll failed for transaction %s: %w", tx.ID, err)
	}

	switch result.Outcome {
	case PollAuthorized:
		if headerPresent {
			h.config.Hooks.authorizationSuccess(tx.ID, req.URL)
			return req, nil
		}
		return h.attach(req, result.Transaction), nil
	case PollDenied:
		return h.handleDenied(req, result.Transaction, headerPresent)
	default:
		return nil, &AuthorizationTimeoutError{
			TransactionID: tx.ID,
			Endpoint:      req.URL,
			Timeout:       h.config.AuthorizationTimeout,
		}
	}
}

// handleDenied applies the denial policy: raise by default, or pass the
// request through without a transaction header when suppression is on.
func (h *AuthorizationHandler) handleDenied(req *Request, tx *Transaction, headerPresent bool) (*Request, error) {
	h.config.Hooks.authorizationDenied(tx.ID, req.URL)

	if h.config.RaiseOnDenied {
		return nil, &AuthorizationDeniedError{
			TransactionID: tx.ID,
			Endpoint:      req.URL,
			Reason:        denialReason(tx),
		}
	}

	h.logger.Debug("authorization denied, passing through",
		zap.String("transaction_id", tx.ID), zap.String("url", req.URL))

	if headerPresent {
		out := req.Clone()
		out.Headers = RemoveHeader(out.Headers, TransactionIDHeader)
		return out, nil
	}
	return req, nil
}

func (h *AuthorizationHandler) attach(req *Request, tx *Transaction) *Request {
	out := req.Clone()
	out.Headers = SetHeader(out.Headers, TransactionIDHeader, tx.ID)
	h.config.Hooks.authorizationSuccess(tx.ID, req.URL)
	return out
}

func denialReason(tx *Transaction) string {
	if tx.Metadata != nil {
		if reason, ok := tx.Metadata["reason"].(string); ok {
			return reason
		}
	}
	return ""
}

func hasOverrideMetadata(o *Overrides) bool {
	if o == nil {
		return false
	}
	return o.ServiceName != "" || o.ActionName != "" || o.ResourceName != "" ||
		o.AgentID != "" || o.TraceID != "" || len(o.Qualifiers) > 0 || len(o.Metadata) > 0
}

// deriveServiceName falls back to the request host when no service name was
// configured or overridden.
func deriveServiceName(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return rawURL
}
