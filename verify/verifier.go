// Package verify implements payment-proof verification against the ledger:
// the settlement-transaction path for the "exact" scheme and the off-chain
// claim path for the "channel" scheme.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/paylith/x402-solana"
	"github.com/paylith/x402-solana/ledger"
	"github.com/paylith/x402-solana/replay"
	"github.com/paylith/x402-solana/validation"
)

// Options tune verification behavior. The zero value is the production
// configuration.
type Options struct {
	// SkipReplayCheck disables the replay cache. Only for the facilitator
	// /verify fast path and tests.
	SkipReplayCheck bool

	// SkipExpiryCheck disables transaction-age and claim-expiry checks.
	SkipExpiryCheck bool

	// MinClaimIncrement floors the per-claim increment on channels, in base
	// units. Zero means the requirement amount is the only floor.
	MinClaimIncrement uint64

	// Logger receives verification telemetry. Nil means slog.Default.
	Logger *slog.Logger
}

// Verifier checks payment proofs against ledger state. Safe for concurrent
// use.
type Verifier struct {
	client ledger.Client
	cache  replay.Cache
	opts   Options
	log    *slog.Logger
	now    func() time.Time
}

// NewVerifier builds a Verifier on a ledger client and a replay cache. The
// cache may be nil only when opts.SkipReplayCheck is set.
func NewVerifier(client ledger.Client, cache replay.Cache, opts Options) *Verifier {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{
		client: client,
		cache:  cache,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

// VerifyProof verifies a decoded payment proof against a requirement,
// routing by scheme. resource is the URL the payment is consumed for; it is
// recorded in the replay cache.
func (v *Verifier) VerifyProof(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement, resource string) *x402.VerificationResult {
	if _, err := x402.NetworkByID(payment.Network); err != nil {
		return x402.Invalid(x402.KindUnsupportedNetwork, fmt.Sprintf("unsupported network: %s", payment.Network))
	}

	switch payment.Scheme {
	case x402.SchemeExact:
		body, err := payment.ExactPayload()
		if err != nil {
			return x402.Invalid(x402.KindInvalidHeader, "malformed exact payload")
		}
		return v.VerifyTransfer(ctx, body, requirement, resource)
	case x402.SchemeChannel:
		body, err := payment.ChannelPayload()
		if err != nil {
			return x402.Invalid(x402.KindChannelInvalidPayload, "malformed channel payload")
		}
		return v.VerifyClaim(ctx, body, requirement)
	default:
		return x402.Invalid(x402.KindUnsupportedScheme, fmt.Sprintf("unsupported scheme: %s", payment.Scheme))
	}
}

// VerifyTransfer verifies an "exact" proof: the referenced transaction must
// exist, have succeeded, and contain a stablecoin transfer of at least the
// required amount to the required destination, recent enough, and never seen
// before. The replay entry is written only after every read-only check has
// passed, so a rejected proof stays usable for a later valid attempt.
func (v *Verifier) VerifyTransfer(ctx context.Context, payload x402.ExactPayload, requirement x402.PaymentRequirement, resource string) *x402.VerificationResult {
	if err := validation.ValidateExactPayload(payload); err != nil {
		return x402.Invalid(x402.KindInvalidHeader, err.Error())
	}
	signature, err := solana.SignatureFromBase58(payload.Signature)
	if err != nil {
		return x402.Invalid(x402.KindInvalidHeader, "signature is not base58")
	}

	required, err := strconv.ParseUint(requirement.MaxAmountRequired, 10, 64)
	if err != nil {
		return x402.Invalid(x402.KindInternal, "requirement amount is not a decimal integer")
	}

	// Cheap replay pre-check before spending an RPC round trip. The
	// authoritative check is the atomic consume at the end.
	if !v.opts.SkipReplayCheck {
		existing, err := v.cache.Peek(ctx, payload.Signature)
		if err != nil {
			return x402.Invalid(x402.KindInternal, fmt.Sprintf("replay cache: %v", err))
		}
		if existing != nil {
			return x402.Invalid(x402.KindReplayAttack, "payment already consumed")
		}
	}

	tx, err := v.client.GetTransaction(ctx, signature)
	if err != nil {
		return x402.Invalid(x402.KindRpcError, fmt.Sprintf("ledger lookup failed: %v", err))
	}

	outcome, err := ledger.ParseTransfers(tx)
	if err != nil {
		return x402.Invalid(x402.KindOf(err), err.Error())
	}
	switch outcome.Status {
	case ledger.ParseTxNotFound:
		return x402.Invalid(x402.KindTxNotFound, "transaction not found on ledger")
	case ledger.ParseTxFailed:
		return x402.Invalid(x402.KindTxFailed, "transaction failed on ledger")
	}

	transfer, result := v.matchTransfer(outcome.Transfers, requirement, required)
	if result != nil {
		return result
	}

	if !v.opts.SkipExpiryCheck && requirement.MaxTimeoutSeconds > 0 && outcome.BlockTime > 0 {
		age := v.now().Unix() - outcome.BlockTime
		if age > int64(requirement.MaxTimeoutSeconds) {
			return x402.Invalid(x402.KindTxExpired,
				fmt.Sprintf("transaction is %ds old, limit %ds", age, requirement.MaxTimeoutSeconds))
		}
	}

	if err := ctx.Err(); err != nil {
		return x402.Invalid(x402.KindInternal, err.Error())
	}

	// All read-only checks passed; consume the signature last so that only
	// accepted proofs occupy the replay window.
	if !v.opts.SkipReplayCheck {
		consumed, err := v.cache.TryConsume(ctx, payload.Signature, replay.Metadata{
			Signature:  payload.Signature,
			Resource:   resource,
			Amount:     transfer.Amount,
			Payer:      transfer.Authority,
			ConsumedAt: v.now(),
			Status:     replay.StatusConsumed,
		}, replay.TTLFor(requirement.MaxTimeoutSeconds))
		if err != nil {
			return x402.Invalid(x402.KindInternal, fmt.Sprintf("replay cache: %v", err))
		}
		if !consumed.FirstTime {
			return x402.Invalid(x402.KindReplayAttack, "payment already consumed")
		}
	}

	v.log.Debug("payment verified",
		"scheme", x402.SchemeExact,
		"signature", payload.Signature,
		"amount", transfer.Amount,
		"payer", transfer.Authority,
		"slot", outcome.Slot)

	return &x402.VerificationResult{
		Valid:     true,
		Transfer:  transfer,
		Signature: payload.Signature,
		BlockTime: outcome.BlockTime,
		Slot:      outcome.Slot,
	}
}

// matchTransfer finds the transfer satisfying the requirement, or the
// rejection to return. Self transfers are skipped: they move no value even
// though they produce balance deltas on both sides.
func (v *Verifier) matchTransfer(transfers []x402.TransferRecord, requirement x402.PaymentRequirement, required uint64) (*x402.TransferRecord, *x402.VerificationResult) {
	sawMint := false
	var nearest *x402.TransferRecord
	for i := range transfers {
		transfer := &transfers[i]
		if transfer.Mint != requirement.Asset {
			continue
		}
		sawMint = true
		if transfer.Source == transfer.Destination {
			continue
		}
		if transfer.Destination != requirement.PayTo {
			continue
		}
		nearest = transfer
		if transfer.Amount >= required {
			return transfer, nil
		}
	}

	if !sawMint {
		return nil, x402.Invalid(x402.KindNoTokenTransfer, "transaction contains no transfer of the required asset")
	}

	result := x402.Invalid(x402.KindTransferMismatch, "no transfer matches the required destination and amount")
	result.Debug = map[string]any{
		"requiredAmount": strconv.FormatUint(required, 10),
		"requiredPayTo":  requirement.PayTo,
	}
	if nearest != nil {
		result.Debug["foundAmount"] = strconv.FormatUint(nearest.Amount, 10)
		result.Debug["foundDestination"] = nearest.Destination
	}
	return nil, result
}
