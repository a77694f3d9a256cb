package x402

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable identifier for a verification failure. It is
// surfaced verbatim as the `code` of inline 402 responses and as the
// `invalidReason` / `error` fields of the facilitator API.
type ErrorKind string

const (
	// KindInvalidHeader indicates a structural failure decoding the proof.
	KindInvalidHeader ErrorKind = "InvalidHeader"

	// KindUnsupportedScheme indicates a scheme this deployment cannot evaluate.
	KindUnsupportedScheme ErrorKind = "UnsupportedScheme"

	// KindUnsupportedNetwork indicates a network this deployment cannot evaluate.
	KindUnsupportedNetwork ErrorKind = "UnsupportedNetwork"

	// KindUnsupportedProtocolVersion indicates an x402 version other than 1.
	KindUnsupportedProtocolVersion ErrorKind = "UnsupportedProtocolVersion"

	// KindTxNotFound indicates the RPC returned no record for the signature.
	KindTxNotFound ErrorKind = "TxNotFound"

	// KindTxFailed indicates the transaction exists but reverted on chain.
	KindTxFailed ErrorKind = "TxFailed"

	// KindNoTokenTransfer indicates the parser found no stablecoin transfer
	// for the required mint.
	KindNoTokenTransfer ErrorKind = "NoTokenTransfer"

	// KindTransferMismatch indicates destination, mint or amount disagree
	// with the requirement.
	KindTransferMismatch ErrorKind = "TransferMismatch"

	// KindTxExpired indicates the transaction is older than allowed.
	KindTxExpired ErrorKind = "TxExpired"

	// KindReplayAttack indicates the signature was already consumed.
	KindReplayAttack ErrorKind = "ReplayAttack"

	// KindParseError indicates malformed transaction meta.
	KindParseError ErrorKind = "ParseError"

	// Channel-scheme failures.
	KindChannelNotFound            ErrorKind = "ChannelNotFound"
	KindChannelNotOpen             ErrorKind = "ChannelNotOpen"
	KindChannelWrongServer         ErrorKind = "ChannelWrongServer"
	KindChannelInvalidNonce        ErrorKind = "ChannelInvalidNonce"
	KindChannelAmountBackwards     ErrorKind = "ChannelAmountBackwards"
	KindChannelInsufficientBalance ErrorKind = "ChannelInsufficientBalance"
	KindChannelClaimExpired        ErrorKind = "ChannelClaimExpired"
	KindChannelInvalidSignature    ErrorKind = "ChannelInvalidSignature"
	KindChannelInvalidPayload      ErrorKind = "ChannelInvalidPayload"

	// KindRpcError indicates a transport failure talking to the ledger.
	KindRpcError ErrorKind = "RpcError"

	// KindInternal indicates an unexpected bug.
	KindInternal ErrorKind = "Internal"
)

// Retriable reports whether the failure is a transport-level condition the
// caller may retry, as opposed to a protocol-level rejection.
func (k ErrorKind) Retriable() bool {
	return k == KindRpcError || k == KindInternal
}

// PaymentError carries an ErrorKind across component boundaries when an
// operation fails as an error rather than as a VerificationResult.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a PaymentError with the given kind and message.
func NewPaymentError(kind ErrorKind, message string, err error) *PaymentError {
	return &PaymentError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the ErrorKind from an error, defaulting to KindInternal.
// Sentinel errors map onto their corresponding kinds.
func KindOf(err error) ErrorKind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrMalformedHeader):
		return KindInvalidHeader
	case errors.Is(err, ErrUnsupportedVersion):
		return KindUnsupportedProtocolVersion
	case errors.Is(err, ErrUnsupportedScheme):
		return KindUnsupportedScheme
	case errors.Is(err, ErrUnsupportedNetwork):
		return KindUnsupportedNetwork
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidHeader
	case errors.Is(err, ErrFacilitatorUnavailable):
		return KindRpcError
	}
	return KindInternal
}

// Sentinel errors for conditions that predate kind classification.
var (
	// ErrMalformedHeader indicates the X-PAYMENT header is malformed.
	ErrMalformedHeader = errors.New("malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported x402 protocol version.
	ErrUnsupportedVersion = errors.New("unsupported x402 version")

	// ErrUnsupportedScheme indicates an unsupported payment scheme.
	ErrUnsupportedScheme = errors.New("unsupported payment scheme")

	// ErrUnsupportedNetwork indicates an unsupported ledger network.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrInvalidAmount indicates a malformed or non-positive amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrFacilitatorUnavailable indicates the facilitator service is unreachable.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

	// ErrVerificationFailed indicates payment verification failed.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrSettlementFailed indicates payment settlement failed.
	ErrSettlementFailed = errors.New("settlement failed")
)
