// Package facilitator defines the facilitator API: the wire types of the
// /verify, /settle and /supported operations and the interface both the
// local implementation and the remote client satisfy.
package facilitator

import (
	"context"

	"github.com/paylith/x402-solana"
)

// VerifyRequest is the body of POST /verify and POST /settle.
type VerifyRequest struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// PaymentHeader is the base64-encoded X-PAYMENT header value.
	PaymentHeader string `json:"paymentHeader"`

	// PaymentRequirements is the requirement the proof is checked against.
	PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
}

// VerifyResponse is the body of a /verify reply.
type VerifyResponse struct {
	// IsValid reports whether the proof is structurally acceptable.
	IsValid bool `json:"isValid"`

	// InvalidReason is the ErrorKind name when IsValid is false, else null.
	InvalidReason *string `json:"invalidReason"`
}

// SettleResponse is the body of a /settle reply.
type SettleResponse struct {
	// Success reports whether the payment fully verified against the ledger.
	Success bool `json:"success"`

	// Error is the ErrorKind name when Success is false, else null.
	Error *string `json:"error"`

	// TxHash is the settled ledger signature when Success is true, else null.
	TxHash *string `json:"txHash"`

	// NetworkID is the network the payment settled on, else null.
	NetworkID *string `json:"networkId"`
}

// SchemePair is one (scheme, network) combination a facilitator supports.
type SchemePair struct {
	Scheme  string `json:"scheme"`
	Network string `json:"network"`
}

// SupportedResponse is the body of a GET /supported reply.
type SupportedResponse struct {
	Supported []SchemePair `json:"supported"`
}

// Interface is the facilitator contract. Verify is a structural fast path
// that never contacts the ledger; Settle performs full verification
// including replay consumption.
type Interface interface {
	Verify(ctx context.Context, paymentHeader string, requirement x402.PaymentRequirement) (*VerifyResponse, error)
	Settle(ctx context.Context, paymentHeader string, requirement x402.PaymentRequirement) (*SettleResponse, error)
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// Reason wraps an ErrorKind for the nullable reason fields.
func Reason(kind x402.ErrorKind) *string {
	s := string(kind)
	return &s
}
