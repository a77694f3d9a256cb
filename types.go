package x402

import (
	"encoding/json"
	"math/big"
)

// ProtocolVersion is the x402 protocol version this module speaks.
const ProtocolVersion = 1

// Payment schemes.
const (
	// SchemeExact requires a single settlement transaction for the stated amount.
	SchemeExact = "exact"

	// SchemeChannel accepts an incremental off-chain claim against an
	// on-chain settlement channel.
	SchemeChannel = "channel"
)

// PaymentRequirement represents a single payment option from a 402 response.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier ("exact" or "channel").
	Scheme string `json:"scheme"`

	// Network is the ledger network identifier (e.g., "solana-mainnet").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in base units of the asset,
	// as a decimal string (6-decimal stablecoin, so micro-units).
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the mint address of the token the payment must move.
	Asset string `json:"asset"`

	// PayTo is the account that must be the transfer destination (exact)
	// or the authorized server pubkey (channel).
	PayTo string `json:"payTo"`

	// Resource is the identifier the payment binds to, typically a request URL.
	Resource string `json:"resource"`

	// Description is an optional human-readable payment description. Not verified.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource. Not verified.
	MimeType string `json:"mimeType"`

	// MaxTimeoutSeconds is the maximum age allowed for the referenced
	// ledger transaction at verification time.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// OutputSchema describes the protected response shape. Not verified.
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`

	// Extra contains scheme-specific additional data. Not verified.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequirementsResponse is the complete 402 response body.
type PaymentRequirementsResponse struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error"`

	// Accepts is an ordered list of payment options the server will accept.
	// The first option matching a presented proof is used.
	Accepts []PaymentRequirement `json:"accepts"`
}

// PaymentPayload is the decoded X-PAYMENT header.
type PaymentPayload struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier ("exact" or "channel").
	Scheme string `json:"scheme"`

	// Network is the ledger network identifier.
	Network string `json:"network"`

	// Payload is the scheme-specific proof body, decoded lazily so an
	// unknown scheme still parses at the envelope level.
	Payload json.RawMessage `json:"payload"`
}

// ExactPayload is the proof body for the "exact" scheme.
type ExactPayload struct {
	// Signature is the base58 ledger signature of the settlement transaction.
	Signature string `json:"signature"`
}

// ChannelPayload is the proof body for the "channel" scheme.
// Amount, Nonce and Expiry are decimal strings on the wire.
type ChannelPayload struct {
	// ChannelID is the base58 address of the program-derived channel account.
	ChannelID string `json:"channelId"`

	// Amount is the cumulative claimed amount in base units.
	Amount string `json:"amount"`

	// Nonce is the claim nonce; must exceed the on-chain channel nonce.
	Nonce string `json:"nonce"`

	// Expiry is the claim expiry in unix seconds; "0" or absent means no expiry.
	Expiry string `json:"expiry,omitempty"`

	// Signature is the base64 64-byte Ed25519 signature over the canonical
	// claim message, made by the channel's client key.
	Signature string `json:"signature"`
}

// ExactPayload decodes the payload as an "exact" proof body.
func (p PaymentPayload) ExactPayload() (ExactPayload, error) {
	var out ExactPayload
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return out, err
	}
	return out, nil
}

// ChannelPayload decodes the payload as a "channel" proof body.
func (p PaymentPayload) ChannelPayload() (ChannelPayload, error) {
	var out ChannelPayload
	if err := json.Unmarshal(p.Payload, &out); err != nil {
		return out, err
	}
	return out, nil
}

// NewExactPayment builds an X-PAYMENT envelope for the "exact" scheme.
func NewExactPayment(network, signature string) PaymentPayload {
	raw, _ := json.Marshal(ExactPayload{Signature: signature})
	return PaymentPayload{
		X402Version: ProtocolVersion,
		Scheme:      SchemeExact,
		Network:     network,
		Payload:     raw,
	}
}

// NewChannelPayment builds an X-PAYMENT envelope for the "channel" scheme.
func NewChannelPayment(network string, claim ChannelPayload) PaymentPayload {
	raw, _ := json.Marshal(claim)
	return PaymentPayload{
		X402Version: ProtocolVersion,
		Scheme:      SchemeChannel,
		Network:     network,
		Payload:     raw,
	}
}

// TransferRecord is one stablecoin movement extracted from a ledger transaction.
type TransferRecord struct {
	// Source is the token account debited.
	Source string `json:"source"`

	// Destination is the token account credited.
	Destination string `json:"destination"`

	// Authority is the owner of the source account (the payer wallet).
	Authority string `json:"authority"`

	// Amount is the credited amount in base units.
	Amount uint64 `json:"amount"`

	// Mint is the token mint the transfer moved.
	Mint string `json:"mint"`
}

// VerificationResult is the outcome of a payment-proof verification.
// Failures are values, not errors: only transport or programming failures
// travel as Go errors.
type VerificationResult struct {
	// Valid reports whether the proof satisfies the requirement.
	Valid bool `json:"valid"`

	// ErrorKind identifies the failure when Valid is false.
	ErrorKind ErrorKind `json:"errorKind,omitempty"`

	// ErrorDetail is a human-readable explanation of the failure.
	ErrorDetail string `json:"errorDetail,omitempty"`

	// Transfer is the matched transfer for a valid result. For channel
	// claims the amount is the increment over the previously claimed total.
	Transfer *TransferRecord `json:"transfer,omitempty"`

	// Signature is the ledger signature (exact) or claim signature (channel).
	Signature string `json:"signature,omitempty"`

	// BlockTime is the transaction block time in unix seconds, when known.
	BlockTime int64 `json:"blockTime,omitempty"`

	// Slot is the ledger slot of the transaction, when known.
	Slot uint64 `json:"slot,omitempty"`

	// Debug enumerates what was found when the decision needs explaining,
	// e.g. the transfers inspected on a TransferMismatch.
	Debug map[string]interface{} `json:"debug,omitempty"`
}

// Invalid builds a failed VerificationResult with the given kind and detail.
func Invalid(kind ErrorKind, detail string) *VerificationResult {
	return &VerificationResult{Valid: false, ErrorKind: kind, ErrorDetail: detail}
}

// ReceiptStatusVerified is the only status issued receipts carry.
const ReceiptStatusVerified = "verified"

// PaymentReceipt is the X-PAYMENT-RESPONSE header body, emitted base64-encoded
// on successfully gated responses.
type PaymentReceipt struct {
	// Signature is the ledger signature the receipt acknowledges.
	Signature string `json:"signature"`

	// Network is the ledger network identifier.
	Network string `json:"network"`

	// Amount is the verified amount in base units.
	Amount uint64 `json:"amount"`

	// Timestamp is the receipt creation time in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`

	// Status is always "verified" on issued receipts.
	Status string `json:"status"`

	// BlockTime is the transaction block time in unix seconds, when known.
	BlockTime int64 `json:"blockTime,omitempty"`

	// Slot is the ledger slot of the transaction, when known.
	Slot uint64 `json:"slot,omitempty"`
}

// PaymentInfo is attached to the request context after a successful
// verification so downstream handlers can see what was paid.
type PaymentInfo struct {
	// Signature is the ledger signature (exact) or claim signature (channel).
	Signature string

	// Amount is the verified amount in base units.
	Amount uint64

	// AmountUSD is the verified amount in display units, e.g. "0.001000".
	AmountUSD string

	// Payer is the paying wallet (transfer authority or channel client).
	Payer string

	// BlockTime is the transaction block time in unix seconds, when known.
	BlockTime int64

	// Slot is the ledger slot of the transaction, when known.
	Slot uint64
}

// AmountToBigInt converts a decimal amount string to *big.Int in base units.
// For example, "1.5" with 6 decimals becomes 1500000.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	value := new(big.Float)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}

	multiplier := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value.Mul(value, multiplier)

	result, accuracy := value.Int(nil)
	if accuracy != big.Exact {
		return nil, ErrInvalidAmount
	}
	return result, nil
}

// BigIntToAmount converts a *big.Int in base units to a decimal string.
// For example, 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	f := new(big.Float).SetInt(value)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, divisor)

	return f.Text('f', decimals)
}

// BaseUnitsToUSD formats an integer base-unit amount as a display-unit string.
func BaseUnitsToUSD(amount uint64, decimals int) string {
	return BigIntToAmount(new(big.Int).SetUint64(amount), decimals)
}
