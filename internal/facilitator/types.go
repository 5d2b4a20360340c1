// Package facilitator is the registry that dispatches x402 payment
// verification and settlement to the scheme handler registered for a
// payment's (scheme, network) pair. Wire types mirror the x402 protocol's
// JSON shape exactly, camelCase included, since they cross the HTTP
// boundary verbatim.
package facilitator

import "encoding/json"

// X402Version is the only protocol version this facilitator speaks.
const X402Version = 1

// PaymentRequirements is one acceptable way to pay for a resource.
type PaymentRequirements struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Asset             string          `json:"asset"`
	PayTo             string          `json:"payTo"`
	Resource          string          `json:"resource,omitempty"`
	Description       string          `json:"description,omitempty"`
	MimeType          string          `json:"mimeType,omitempty"`
	OutputSchema      json.RawMessage `json:"outputSchema,omitempty"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds"`
	Extra             json.RawMessage `json:"extra,omitempty"`
}

// PaymentRequirementsResponse is returned when a resource requires payment.
type PaymentRequirementsResponse struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// Authorization is an EIP-3009-shaped spend authorization, wire-encoded as
// decimal strings regardless of scheme (the EVM scheme parses them as
// base-10 big integers; other schemes may interpret them differently).
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// SchemePayload carries a signature over an Authorization.
type SchemePayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is what a client sends to spend one of a resource's
// accepted PaymentRequirements.
type PaymentPayload struct {
	X402Version int           `json:"x402Version"`
	Scheme      string        `json:"scheme"`
	Network     string        `json:"network"`
	Payload     SchemePayload `json:"payload"`
}

// VerifyRequest bundles a client's payload with the requirements it claims
// to satisfy; it is the input to both Verify and Settle.
type VerifyRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements"`
}

// VerifyResponse reports whether a payment payload is valid.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer"`
}

// SettlementResponse reports the outcome of executing a verified payment.
type SettlementResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer"`
}

// SupportedScheme is one registered (scheme, network) pair.
type SupportedScheme struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse lists every registered scheme.
type SupportedResponse struct {
	Kinds []SupportedScheme `json:"kinds"`
}

// DiscoveryRequest paginates the discoverable resource list. Zero-value
// fields take the defaults: limit 20, offset 0, no type filter.
type DiscoveryRequest struct {
	Type   string
	Limit  int
	Offset int
}

// DiscoveryItem is one discoverable resource. Item population (resource
// metadata, accepts list) is left to whatever wires real resources into the
// facilitator; the core only guarantees pagination and envelope shape.
type DiscoveryItem struct {
	Resource    string                `json:"resource"`
	Type        string                `json:"type"`
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	LastUpdated int64                 `json:"lastUpdated"`
	Metadata    json.RawMessage       `json:"metadata,omitempty"`
}

// Pagination describes a page of a larger result set.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// DiscoveryResponse is the paginated discovery envelope.
type DiscoveryResponse struct {
	X402Version int             `json:"x402Version"`
	Items       []DiscoveryItem `json:"items"`
	Pagination  Pagination      `json:"pagination"`
}

// Payee names the recipient address per chain family a scheme might need to
// build requirements against. A scheme that needs a family it finds empty
// here (e.g. the EVM scheme with Payee.EVM == "") contributes nothing to
// create.
type Payee struct {
	EVM    string
	Solana string
}
