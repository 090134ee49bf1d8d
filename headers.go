package sapiom

import "strings"

// Wire-level headers written with a single canonical casing and matched
// case-insensitively on read.
const (
	TransactionIDHeader = "X-Sapiom-Transaction-Id"
	PaymentHeader       = "X-PAYMENT"
)

// GetHeader returns the value for name from headers, matching the name
// case-insensitively per RFC 7230. Returns "" and false when absent.
func GetHeader(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// SetHeader returns a copy of headers with name set to value. Any
// pre-existing case-variants of name are removed so at most one canonical
// entry remains. The input map is never mutated.
func SetHeader(headers map[string]string, name, value string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			continue
		}
		out[k] = v
	}
	out[name] = value
	return out
}

// RemoveHeader returns a copy of headers with every case-variant of name
// removed. The input map is never mutated.
func RemoveHeader(headers map[string]string, name string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			continue
		}
		out[k] = v
	}
	return out
}
