package x402http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/paylith/x402-solana"
	"github.com/paylith/x402-solana/encoding"
	"github.com/paylith/x402-solana/facilitator"
	"github.com/paylith/x402-solana/replay"
	"github.com/paylith/x402-solana/verify"
)

// contextKey is unexported so only this package can place values under it.
type contextKey int

// paymentContextKey indexes the verified PaymentInfo in a request context.
const paymentContextKey contextKey = 0

// PaymentFromContext returns the verified payment attached to a request that
// passed the middleware.
func PaymentFromContext(ctx context.Context) (x402.PaymentInfo, bool) {
	info, ok := ctx.Value(paymentContextKey).(x402.PaymentInfo)
	return info, ok
}

func withPayment(ctx context.Context, info x402.PaymentInfo) context.Context {
	return context.WithValue(ctx, paymentContextKey, info)
}

// MiddlewareConfig configures payment gating for a route.
type MiddlewareConfig struct {
	// PriceUSD is the price of the gated resource in display units.
	PriceUSD float64

	// Generator produces the 402 requirements document.
	Generator *x402.RequirementsGenerator

	// Verifier verifies proofs in process. Ignored when Facilitator is set.
	Verifier *verify.Verifier

	// Facilitator, when set, delegates settlement to a remote facilitator
	// instead of verifying in process.
	Facilitator facilitator.Interface

	// FallbackFacilitator is tried when Facilitator cannot be reached.
	// Protocol rejections from the primary are final and never retried.
	FallbackFacilitator facilitator.Interface

	// Cache, when it supports status marking, records whether the paid
	// response was delivered or aborted.
	Cache replay.Cache

	// Logger receives gating telemetry. Nil means slog.Default.
	Logger *slog.Logger
}

// Middleware returns a net/http middleware that requires payment before the
// wrapped handler runs. Verification happens inline on the request path: a
// missing or invalid proof yields a 402 with the requirements document, and
// a valid one attaches PaymentInfo to the context, sets the receipt header
// and runs the handler.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// CORS preflight never carries payment headers.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			resource := ResourceURL(r)
			requirements, err := cfg.Generator.Generate(cfg.PriceUSD, resource)
			if err != nil {
				log.Error("failed to build payment requirements", "error", err, "resource", resource)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			rawHeader := r.Header.Get(HeaderPayment)
			if rawHeader == "" {
				SendPaymentRequired(w, requirements)
				return
			}

			payment, err := encoding.DecodePayment(rawHeader)
			if err != nil {
				RejectPayment(w, requirements, x402.KindOf(err), "")
				return
			}

			requirement, err := x402.FindMatchingRequirement(payment, requirements.Accepts)
			if err != nil {
				RejectPayment(w, requirements, x402.KindOf(err), err.Error())
				return
			}

			var info x402.PaymentInfo
			if cfg.Facilitator != nil {
				settled, err := cfg.Facilitator.Settle(r.Context(), rawHeader, *requirement)
				if err != nil && cfg.FallbackFacilitator != nil {
					log.Warn("primary facilitator unreachable, trying fallback", "error", err, "resource", resource)
					settled, err = cfg.FallbackFacilitator.Settle(r.Context(), rawHeader, *requirement)
				}
				if err != nil {
					log.Error("facilitator unreachable", "error", err, "resource", resource)
					http.Error(w, "payment verification unavailable", http.StatusServiceUnavailable)
					return
				}
				if !settled.Success {
					kind := x402.KindInternal
					if settled.Error != nil {
						kind = x402.ErrorKind(*settled.Error)
					}
					RejectPayment(w, requirements, kind, "")
					return
				}
				amount, _ := strconv.ParseUint(requirement.MaxAmountRequired, 10, 64)
				if settled.TxHash != nil {
					info.Signature = *settled.TxHash
				}
				info.Amount = amount
				info.AmountUSD = x402.BaseUnitsToUSD(amount, x402.USDCDecimals)
			} else {
				result := cfg.Verifier.VerifyProof(r.Context(), payment, *requirement, resource)
				if !result.Valid {
					log.Info("payment rejected",
						"kind", result.ErrorKind,
						"detail", result.ErrorDetail,
						"resource", resource)
					RejectPayment(w, requirements, result.ErrorKind, result.ErrorDetail)
					return
				}
				info = x402.PaymentInfo{
					Signature: result.Signature,
					Amount:    result.Transfer.Amount,
					AmountUSD: x402.BaseUnitsToUSD(result.Transfer.Amount, x402.USDCDecimals),
					Payer:     result.Transfer.Authority,
					BlockTime: result.BlockTime,
					Slot:      result.Slot,
				}
			}

			receipt := x402.PaymentReceipt{
				Signature: info.Signature,
				Network:   payment.Network,
				Amount:    info.Amount,
				Timestamp: time.Now().UnixMilli(),
				Status:    x402.ReceiptStatusVerified,
				BlockTime: info.BlockTime,
				Slot:      info.Slot,
			}
			if err := SetReceiptHeader(w, receipt); err != nil {
				log.Error("failed to encode receipt", "error", err)
			}

			ctx := withPayment(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))

			// The proof was consumed whether or not the client stayed for the
			// response; record which it was for operators chasing disputes.
			if marker, ok := cfg.Cache.(replay.StatusMarker); ok && info.Signature != "" {
				status := replay.StatusDelivered
				if r.Context().Err() != nil {
					status = replay.StatusAborted
				}
				if err := marker.MarkStatus(context.WithoutCancel(r.Context()), info.Signature, status); err != nil {
					log.Warn("failed to mark delivery status", "error", err)
				}
			}
		})
	}
}
