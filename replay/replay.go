// Package replay prevents a payment proof from being accepted more than
// once. A cache entry is keyed by the proof's transaction signature and
// records the first consumption; every later attempt within the retention
// window observes the existing entry instead of creating a new one.
package replay

import (
	"context"
	"time"
)

// MinTTL is the floor on entry retention. Requirements can carry short
// timeouts, but a proof must stay unusable for at least this long after
// first consumption.
const MinTTL = 10 * time.Minute

// TTLFor returns the retention window for a requirement timeout: the timeout
// itself, floored at MinTTL.
func TTLFor(maxTimeoutSeconds int) time.Duration {
	ttl := time.Duration(maxTimeoutSeconds) * time.Second
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}

// Metadata records the first consumption of a payment proof.
type Metadata struct {
	// Signature is the ledger transaction signature the proof presented.
	Signature string `json:"signature"`

	// Resource is the URL the payment was consumed for.
	Resource string `json:"resource"`

	// Amount is the transferred amount in base units.
	Amount uint64 `json:"amount"`

	// Payer is the source authority of the transfer.
	Payer string `json:"payer"`

	// ConsumedAt is when the proof was first accepted.
	ConsumedAt time.Time `json:"consumedAt"`

	// Status tracks delivery of the paid response: "consumed" on first
	// acceptance, then "delivered" or "aborted" once the response settles.
	Status string `json:"status"`
}

// Consumption status values.
const (
	StatusConsumed  = "consumed"
	StatusDelivered = "delivered"
	StatusAborted   = "aborted"
)

// Result is the outcome of a consume attempt.
type Result struct {
	// FirstTime is true when this call created the entry. Exactly one
	// concurrent caller for a given signature observes true.
	FirstTime bool

	// Existing is the stored metadata when FirstTime is false.
	Existing *Metadata
}

// Cache is the replay-prevention store. Implementations must make
// TryConsume atomic: concurrent calls with the same signature yield exactly
// one FirstTime result.
type Cache interface {
	// TryConsume atomically records the signature as consumed. When the
	// signature is already present, the stored metadata is returned instead
	// and no state changes.
	TryConsume(ctx context.Context, signature string, meta Metadata, ttl time.Duration) (Result, error)

	// Peek reports the stored metadata without consuming, or nil when the
	// signature is unknown.
	Peek(ctx context.Context, signature string) (*Metadata, error)

	// Close releases backend resources.
	Close() error
}

// StatusMarker is implemented by caches that can update the delivery status
// of an already-consumed entry. Marking is best effort; the entry may have
// expired in between.
type StatusMarker interface {
	MarkStatus(ctx context.Context, signature, status string) error
}
