package sapiom

// Request is the transport-agnostic request envelope that flows between
// the handlers and a transport adapter. Adapters translate it to and from
// their library's native request type.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"-"`
	Params  map[string]string `json:"params,omitempty"`

	// Overrides is the per-call escape hatch. Values here take precedence
	// over matched endpoint-rule values, which take precedence over defaults.
	Overrides *Overrides `json:"-"`

	// Metadata carries internal SDK flags such as the payment-retry guard.
	// Adapters must propagate it unchanged between legs of the same logical
	// request.
	Metadata RequestMetadata `json:"-"`
}

// RequestMetadata holds internal flags attached to a request leg.
type RequestMetadata struct {
	// PaymentRetry marks a request re-issued by the payment handler.
	// Exactly one retry is allowed per logical request; a flagged request
	// is never retried again and skips pre-request authorization.
	PaymentRetry bool

	// PreemptiveAuthorization marks transactions created by the
	// authorization handler ahead of the request, as opposed to reactively
	// on a 402.
	PreemptiveAuthorization bool
}

// Overrides is the strongly-typed per-call override bag. A nil field means
// "no override". SkipAuthorization short-circuits the pre-request check
// entirely.
type Overrides struct {
	SkipAuthorization bool
	ServiceName       string
	ActionName        string
	ResourceName      string
	AgentID           string
	TraceID           string
	Qualifiers        map[string]string
	Metadata          map[string]interface{}
}

// Clone returns a shallow copy of the request with its own headers map,
// so interceptors can attach headers without mutating the caller's request.
func (r *Request) Clone() *Request {
	out := *r
	if r.Headers != nil {
		headers := make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			headers[k] = v
		}
		out.Headers = headers
	}
	return &out
}

// Response is the transport-agnostic response envelope.
type Response struct {
	Status     int               `json:"status"`
	StatusText string            `json:"statusText,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"-"`
}

// RequestError is the normalized failure shape adapters raise for non-2xx
// responses and transport faults. Detectors inspect it to recognize
// payment-required signals without depending on any one HTTP library.
type RequestError struct {
	Message  string
	Status   int
	Data     []byte
	Headers  map[string]string
	Request  *Request
	Response *Response
}

func (e *RequestError) Error() string {
	return e.Message
}
