package facilitator

import (
	"context"
	"log/slog"

	"github.com/paylith/x402-solana"
	"github.com/paylith/x402-solana/encoding"
	"github.com/paylith/x402-solana/validation"
	"github.com/paylith/x402-solana/verify"
)

// Local is the in-process facilitator: it verifies proofs with its own
// ledger access instead of delegating to a remote service.
type Local struct {
	verifier *verify.Verifier
	log      *slog.Logger
}

// NewLocal builds a Local facilitator around a verifier.
func NewLocal(verifier *verify.Verifier, log *slog.Logger) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{verifier: verifier, log: log}
}

// classify maps a structural validation failure onto the narrowest kind.
func classify(payment x402.PaymentPayload) x402.ErrorKind {
	if payment.X402Version != 0 && payment.X402Version != x402.ProtocolVersion {
		return x402.KindUnsupportedProtocolVersion
	}
	if payment.Scheme != "" && payment.Scheme != x402.SchemeExact && payment.Scheme != x402.SchemeChannel {
		return x402.KindUnsupportedScheme
	}
	if payment.Network != "" {
		if _, nerr := x402.NetworkByID(payment.Network); nerr != nil {
			return x402.KindUnsupportedNetwork
		}
	}
	if payment.Scheme == x402.SchemeChannel {
		return x402.KindChannelInvalidPayload
	}
	return x402.KindInvalidHeader
}

// Verify implements Interface. It is purely structural: header decoding plus
// payload and requirement shape checks, with no ledger contact. A proof that
// passes here can still fail settlement.
func (l *Local) Verify(ctx context.Context, paymentHeader string, requirement x402.PaymentRequirement) (*VerifyResponse, error) {
	payment, err := encoding.DecodePayment(paymentHeader)
	if err != nil {
		return &VerifyResponse{IsValid: false, InvalidReason: Reason(x402.KindOf(err))}, nil
	}

	if err := validation.ValidatePaymentRequirement(requirement); err != nil {
		return &VerifyResponse{IsValid: false, InvalidReason: Reason(x402.KindInvalidHeader)}, nil
	}
	if err := validation.ValidatePaymentPayload(payment); err != nil {
		return &VerifyResponse{IsValid: false, InvalidReason: Reason(classify(payment))}, nil
	}
	if payment.Scheme != requirement.Scheme {
		return &VerifyResponse{IsValid: false, InvalidReason: Reason(x402.KindUnsupportedScheme)}, nil
	}

	return &VerifyResponse{IsValid: true}, nil
}

// Settle implements Interface: full verification against the ledger,
// including replay consumption for the exact scheme.
func (l *Local) Settle(ctx context.Context, paymentHeader string, requirement x402.PaymentRequirement) (*SettleResponse, error) {
	payment, err := encoding.DecodePayment(paymentHeader)
	if err != nil {
		return &SettleResponse{Success: false, Error: Reason(x402.KindOf(err))}, nil
	}

	result := l.verifier.VerifyProof(ctx, payment, requirement, requirement.Resource)
	if !result.Valid {
		l.log.Info("settlement rejected",
			"kind", result.ErrorKind,
			"detail", result.ErrorDetail,
			"scheme", payment.Scheme,
			"network", payment.Network)
		return &SettleResponse{Success: false, Error: Reason(result.ErrorKind)}, nil
	}

	txHash := result.Signature
	network := payment.Network
	l.log.Info("settlement verified",
		"scheme", payment.Scheme,
		"network", network,
		"signature", txHash)
	return &SettleResponse{
		Success:   true,
		TxHash:    &txHash,
		NetworkID: &network,
	}, nil
}

// Supported implements Interface: the cartesian product of supported schemes
// and networks.
func (l *Local) Supported(ctx context.Context) (*SupportedResponse, error) {
	var pairs []SchemePair
	for _, scheme := range x402.SupportedSchemes() {
		for _, network := range x402.SupportedNetworks() {
			pairs = append(pairs, SchemePair{Scheme: scheme, Network: network})
		}
	}
	return &SupportedResponse{Supported: pairs}, nil
}

var _ Interface = (*Local)(nil)
