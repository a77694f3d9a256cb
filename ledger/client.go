// Package ledger talks to the Solana JSON-RPC API and turns raw transaction
// and account records into the domain types the verifiers consume.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// DefaultRequestTimeout bounds each outbound RPC call.
const DefaultRequestTimeout = 10 * time.Second

// Client is the narrow RPC surface the verifiers require. Both methods are
// idempotent reads; implementations must be safe for concurrent use.
// A nil result with a nil error means the record does not exist.
type Client interface {
	// GetTransaction fetches the transaction for a signature at confirmed
	// commitment, or nil if the ledger has no record of it.
	GetTransaction(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error)

	// GetAccountInfo fetches the raw account at the address, or nil if the
	// account does not exist.
	GetAccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.Account, error)
}

// RPCClient implements Client over a solana-go RPC connection, applying a
// per-operation deadline to every call.
type RPCClient struct {
	rpc     *rpc.Client
	timeout time.Duration
}

// NewRPCClient connects to the given JSON-RPC endpoint. A non-positive
// timeout falls back to DefaultRequestTimeout.
func NewRPCClient(endpoint string, timeout time.Duration) *RPCClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &RPCClient{
		rpc:     rpc.New(endpoint),
		timeout: timeout,
	}
}

// GetTransaction implements Client.
func (c *RPCClient) GetTransaction(ctx context.Context, signature solana.Signature) (*rpc.GetTransactionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getTransaction %s: %w", signature, err)
	}
	return out, nil
}

// GetAccountInfo implements Client.
func (c *RPCClient) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getAccountInfo %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}
	return out.Value, nil
}
