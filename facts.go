package sapiom

import (
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// sensitiveHeaderMarkers flags header names that must never leave the
// process as part of request facts.
var sensitiveHeaderMarkers = []string{"auth", "key", "token", "cookie", "secret"}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range sensitiveHeaderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// buildRequestFacts assembles the sanitized request description sent with a
// create-transaction call. Credential-bearing headers are stripped; the body
// is described by presence and size only, never content.
func buildRequestFacts(req *Request) *RequestFacts {
	facts := &RequestFacts{
		RequestID: uuid.NewString(),
		Method:    req.Method,
		URL:       req.URL,
		HasBody:   len(req.Body) > 0,
		BodyBytes: len(req.Body),
		Timestamp: time.Now().UTC(),
		CallSite:  callerOutsideSDK(),
	}

	if parsed, err := url.Parse(req.URL); err == nil {
		facts.Host = parsed.Host
		facts.Path = parsed.Path
		facts.Query = parsed.RawQuery
	}

	if len(req.Headers) > 0 {
		headers := make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			if isSensitiveHeader(k) {
				continue
			}
			headers[k] = v
		}
		if agent, ok := GetHeader(headers, "User-Agent"); ok {
			facts.ClientAgent = agent
		}
		facts.Headers = headers
	}

	return facts
}

// callerOutsideSDK walks the stack for the first frame outside this module,
// giving a best-effort file:line for where the guarded call originated.
func callerOutsideSDK() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "github.com/sapiom/sapiom-go") {
			return fmt.Sprintf("%s:%d", frame.File, frame.Line)
		}
		if !more {
			return ""
		}
	}
}
