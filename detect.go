package sapiom

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// PaymentRequiredInfo is the normalized result of interpreting a
// payment-required failure.
type PaymentRequiredInfo struct {
	// Payment carries the extracted payment terms.
	Payment *PaymentData

	// Resource identifies what was being accessed, typically the request
	// URL. Used to derive a service name when no override is present.
	Resource string

	// TransactionID is a pre-existing transaction id advertised by the
	// response, if any.
	TransactionID string
}

// PaymentDetector interprets one family of error shapes. Transports with
// bespoke error types register their own detector instead of modifying the
// core; detectors registered later take priority.
type PaymentDetector interface {
	// CanHandle reports whether this detector understands err's shape.
	CanHandle(err error) bool

	// IsPaymentRequired reports whether err represents HTTP 402. Only
	// called when CanHandle returned true.
	IsPaymentRequired(err error) bool

	// Extract pulls the normalized payment-requirement structure out of
	// err. An extraction error means "not a payment error I can handle";
	// the original failure then propagates unchanged.
	Extract(err error) (*PaymentRequiredInfo, error)
}

// DetectorRegistry holds the detector chain. It is constructed explicitly
// and passed by reference to the handlers that need it; there is no
// package-level registry.
type DetectorRegistry struct {
	mu        sync.RWMutex
	detectors []PaymentDetector
}

// NewDetectorRegistry creates a registry with the built-in RequestError
// detector pre-registered.
func NewDetectorRegistry() *DetectorRegistry {
	r := &DetectorRegistry{}
	r.Register(&RequestErrorDetector{})
	return r
}

// Register adds a detector. Detectors are tried most-recently-registered
// first, so transport-specific detectors override the generic fallback.
func (r *DetectorRegistry) Register(d PaymentDetector) {
	r.mu.Lock()
	r.detectors = append(r.detectors, d)
	r.mu.Unlock()
}

// Find returns the first detector claiming err, newest first. Returns nil
// when no detector can handle it.
func (r *DetectorRegistry) Find(err error) PaymentDetector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.detectors) - 1; i >= 0; i-- {
		if r.detectors[i].CanHandle(err) {
			return r.detectors[i]
		}
	}
	return nil
}

// RequestErrorDetector is the generic fallback for the SDK's normalized
// *RequestError shape with an x402 body.
type RequestErrorDetector struct{}

func (d *RequestErrorDetector) CanHandle(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}

func (d *RequestErrorDetector) IsPaymentRequired(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.Status == http.StatusPaymentRequired
}

func (d *RequestErrorDetector) Extract(err error) (*PaymentRequiredInfo, error) {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return nil, fmt.Errorf("not a request error")
	}

	required, parseErr := ParseX402Body(reqErr.Data)
	if parseErr != nil {
		return nil, parseErr
	}

	info := &PaymentRequiredInfo{
		Payment: PaymentDataFromRequirements(required.Accepts[0]),
	}

	switch {
	case reqErr.Request != nil && reqErr.Request.URL != "":
		info.Resource = reqErr.Request.URL
	case required.Resource != nil:
		info.Resource = required.Resource.URL
	case required.Accepts[0].Resource != "":
		info.Resource = required.Accepts[0].Resource
	default:
		return nil, fmt.Errorf("no resource identifier in 402 response")
	}

	if reqErr.Headers != nil {
		if id, ok := GetHeader(reqErr.Headers, TransactionIDHeader); ok {
			info.TransactionID = id
		}
	}

	return info, nil
}
