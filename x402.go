package sapiom

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// X402PaymentRequirements is one entry of an x402 "accepts" list: a payment
// option the resource server will settle for.
type X402PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Asset             string                 `json:"asset,omitempty"`
	Amount            string                 `json:"amount,omitempty"`
	MaxAmountRequired string                 `json:"maxAmountRequired,omitempty"`
	PayTo             string                 `json:"payTo"`
	Resource          string                 `json:"resource,omitempty"`
	Description       string                 `json:"description,omitempty"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// RequiredAmount returns the v2 amount, falling back to the v1
// maxAmountRequired field.
func (r X402PaymentRequirements) RequiredAmount() string {
	if r.Amount != "" {
		return r.Amount
	}
	return r.MaxAmountRequired
}

// X402ResourceInfo describes the paid resource.
type X402ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// X402PaymentRequired is the structured 402 body the SDK consumes.
type X402PaymentRequired struct {
	X402Version int                       `json:"x402Version"`
	Error       string                    `json:"error,omitempty"`
	Resource    *X402ResourceInfo         `json:"resource,omitempty"`
	Accepts     []X402PaymentRequirements `json:"accepts"`
	Extensions  map[string]interface{}    `json:"extensions,omitempty"`
}

// x402BodySchema is the minimal shape a 402 body must satisfy before the
// SDK treats it as an x402 signal. Anything failing validation is handed
// back to the caller untouched.
const x402BodySchema = `{
	"type": "object",
	"required": ["x402Version", "accepts"],
	"properties": {
		"x402Version": {"type": "integer", "minimum": 1},
		"accepts": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["scheme", "network", "payTo"],
				"properties": {
					"scheme": {"type": "string"},
					"network": {"type": "string"},
					"payTo": {"type": "string"}
				}
			}
		}
	}
}`

var x402SchemaLoader = gojsonschema.NewStringLoader(x402BodySchema)

// ParseX402Body validates data against the x402 schema and decodes it.
func ParseX402Body(data []byte) (*X402PaymentRequired, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty 402 body")
	}

	result, err := gojsonschema.Validate(x402SchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("x402 body is not valid JSON: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("body is not an x402 payment-required response: %v", result.Errors())
	}

	var required X402PaymentRequired
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, fmt.Errorf("failed to decode x402 body: %w", err)
	}
	return &required, nil
}

// PaymentDataFromRequirements normalizes one accepts entry into the shape
// forwarded to the transactions service.
func PaymentDataFromRequirements(req X402PaymentRequirements) *PaymentData {
	raw := map[string]interface{}{
		"scheme":  req.Scheme,
		"network": req.Network,
		"payTo":   req.PayTo,
	}
	if req.Asset != "" {
		raw["asset"] = req.Asset
	}
	if amount := req.RequiredAmount(); amount != "" {
		raw["amount"] = amount
	}
	if req.Resource != "" {
		raw["resource"] = req.Resource
	}
	if req.MaxTimeoutSeconds > 0 {
		raw["maxTimeoutSeconds"] = req.MaxTimeoutSeconds
	}
	for k, v := range req.Extra {
		raw[k] = v
	}

	return &PaymentData{
		Scheme:  req.Scheme,
		Network: req.Network,
		Asset:   req.Asset,
		Amount:  req.RequiredAmount(),
		PayTo:   req.PayTo,
		Raw:     raw,
	}
}
