package sapiom

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// RequestExecutor re-issues a request envelope through the transport. The
// payment handler calls it exactly once per handled 402.
type RequestExecutor func(ctx context.Context, req *Request) (*Response, error)

// PaymentHandler is the reactive state machine triggered on HTTP 402:
// it acquires payment authorization for the failed request and retries it
// once with the payment proof attached.
type PaymentHandler struct {
	api      TransactionsAPI
	poller   *TransactionPoller
	registry *DetectorRegistry
	config   Config
	logger   *zap.Logger
}

// NewPaymentHandler builds a handler. registry decides which failures are
// payment-required signals; poller is shared with the authorization side.
func NewPaymentHandler(api TransactionsAPI, poller *TransactionPoller, registry *DetectorRegistry, config Config) *PaymentHandler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{
		api:      api,
		poller:   poller,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// HandlePaymentError inspects a failed request. It returns (nil, nil) when
// the failure is not a payment-required signal it can settle — the caller
// must then propagate the original error unchanged. Denials and poll
// timeouts surface as a synthesized 403 response, not an error, so callers
// using ordinary status handling see a conventional failure. Contract
// violations (an authorized transaction without a proof) are re-thrown.
func (h *PaymentHandler) HandlePaymentError(ctx context.Context, cause error, original *Request, exec RequestExecutor) (*Response, error) {
	detector := h.registry.Find(cause)
	if detector == nil || !detector.IsPaymentRequired(cause) {
		return nil, nil
	}

	// A flagged request already consumed its one retry; a second 402 on
	// the retried leg propagates as-is.
	if original.Metadata.PaymentRetry {
		return nil, nil
	}

	info, err := detector.Extract(cause)
	if err != nil {
		h.logger.Debug("402 extraction failed, passing error through", zap.Error(err))
		return nil, nil
	}

	resp, err := h.settle(ctx, info, original, exec)
	if err != nil {
		// Observational only: the callback never swallows the error.
		h.config.Hooks.paymentFailure(info.TransactionID, err)
		return nil, err
	}
	return resp, nil
}

func (h *PaymentHandler) settle(ctx context.Context, info *PaymentRequiredInfo, original *Request, exec RequestExecutor) (*Response, error) {
	tx, err := h.resolveTransaction(ctx, info, original)
	if err != nil {
		return nil, err
	}

	if tx.Status.IsNegative() {
		h.config.Hooks.paymentFailure(tx.ID, fmt.Errorf("transaction %s was %s", tx.ID, strings.ToLower(string(tx.Status))))
		return synthesizedDenialResponse(tx.ID, tx.Status, false), nil
	}

	if !tx.Status.IsPositive() {
		if info.Payment != nil {
			h.config.Hooks.paymentRequired(tx.ID, info.Payment)
		}

		result, err := h.poller.WaitForAuthorization(ctx, tx.ID)
		if err != nil {
			return nil, fmt.Errorf("payment poll failed for transaction %s: %w", tx.ID, err)
		}

		switch result.Outcome {
		case PollAuthorized:
			// Adopt the polled snapshot; no redundant fetch.
			tx = result.Transaction
		case PollDenied:
			h.config.Hooks.paymentFailure(tx.ID, fmt.Errorf("transaction %s was denied", tx.ID))
			return synthesizedDenialResponse(tx.ID, result.Transaction.Status, false), nil
		default:
			h.config.Hooks.paymentFailure(tx.ID, fmt.Errorf("transaction %s timed out awaiting payment authorization", tx.ID))
			return synthesizedDenialResponse(tx.ID, StatusPending, true), nil
		}
	}

	if !tx.HasAuthorizationPayload() {
		return nil, &MissingPayloadError{TransactionID: tx.ID}
	}

	encoded, err := encodeAuthorizationPayload(tx.Payment.AuthorizationPayload)
	if err != nil {
		return nil, err
	}

	retry := original.Clone()
	retry.Headers = SetHeader(retry.Headers, PaymentHeader, encoded)
	retry.Headers = SetHeader(retry.Headers, TransactionIDHeader, tx.ID)
	retry.Metadata.PaymentRetry = true

	h.logger.Debug("retrying request with payment",
		zap.String("transaction_id", tx.ID), zap.String("url", retry.URL))

	resp, err := exec(ctx, retry)
	if err != nil {
		return nil, err
	}

	h.config.Hooks.paymentSuccess(tx.ID)
	return resp, nil
}

// resolveTransaction finds or creates the transaction settling this 402.
// An authorization-phase transaction carried on the request is reused: if
// it is authorized but predates the payment requirement, payment terms are
// attached to the same id instead of creating a parallel transaction.
func (h *PaymentHandler) resolveTransaction(ctx context.Context, info *PaymentRequiredInfo, original *Request) (*Transaction, error) {
	id, _ := GetHeader(original.Headers, TransactionIDHeader)
	if id == "" {
		id = info.TransactionID
	}

	if id != "" {
		tx, err := h.api.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transaction %s: %w", id, err)
		}
		if tx.Status == StatusAuthorized && !tx.RequiresPayment {
			tx, err = h.api.ReauthorizeWithPayment(ctx, tx.ID, info.Payment)
			if err != nil {
				return nil, fmt.Errorf("failed to reauthorize transaction %s with payment: %w", id, err)
			}
		}
		return tx, nil
	}

	txReq := &TransactionRequest{
		ServiceName:  serviceNameFromResource(info.Resource),
		ActionName:   "access",
		ResourceName: info.Resource,
		PaymentData:  info.Payment,
		RequestFacts: buildRequestFacts(original),
	}

	if o := original.Overrides; o != nil {
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
		if len(o.Metadata) > 0 {
			txReq.Metadata = o.Metadata
		}
	}

	tx, err := h.api.Create(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return tx, nil
}

// encodeAuthorizationPayload prepares the proof for the X-PAYMENT header:
// strings pass through untouched, anything structured is base64-encoded
// JSON.
func encodeAuthorizationPayload(payload interface{}) (string, error) {
	if s, ok := payload.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize authorization payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// synthesizedDenialResponse builds the 403 returned for payment denials and
// timeouts, keeping 402-family failures inside normal HTTP response
// handling rather than the error path.
func synthesizedDenialResponse(txID string, status TransactionStatus, timedOut bool) *Response {
	message := fmt.Sprintf("payment denied: transaction %s is %s", txID, strings.ToLower(string(status)))
	if timedOut {
		message = fmt.Sprintf("payment authorization timed out for transaction %s", txID)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"error":             message,
		"transactionId":     txID,
		"transactionStatus": string(status),
	})

	return &Response{
		Status:     http.StatusForbidden,
		StatusText: http.StatusText(http.StatusForbidden),
		Headers: map[string]string{
			TransactionIDHeader: txID,
			"Content-Type":      "application/json",
		},
		Body: body,
	}
}

// serviceNameFromResource derives a service name from the first path
// segment of the resource URL, falling back to the host.
func serviceNameFromResource(resource string) string {
	parsed, err := url.Parse(resource)
	if err != nil {
		return resource
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	if parsed.Host != "" {
		return parsed.Host
	}
	return resource
}
