// Package x402 implements the server side of the x402 micropayment protocol
// bound to the Solana ledger with USDC as the settlement asset. It provides
// the protocol types, the network and asset registry, the error taxonomy and
// the 402 requirements generator; verification lives in the verify package
// and the HTTP surfaces in the http package.
package x402

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// USDCDecimals is the number of decimal places for USDC (always 6).
const USDCDecimals = 6

// Network identifiers.
const (
	NetworkSolanaMainnet = "solana-mainnet"
	NetworkSolanaDevnet  = "solana-devnet"
)

// NetworkConfig carries per-network ledger configuration: the USDC mint,
// asset decimals and the default RPC endpoint.
type NetworkConfig struct {
	// ID is the x402 network identifier (e.g., "solana-mainnet").
	ID string

	// USDCMint is the Circle USDC mint address on this network.
	USDCMint string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals int

	// RPCEndpoint is the default JSON-RPC endpoint for this network.
	RPCEndpoint string
}

var (
	// SolanaMainnet is the configuration for Solana mainnet-beta.
	SolanaMainnet = NetworkConfig{
		ID:          NetworkSolanaMainnet,
		USDCMint:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:    USDCDecimals,
		RPCEndpoint: rpc.MainNetBeta_RPC,
	}

	// SolanaDevnet is the configuration for Solana devnet.
	SolanaDevnet = NetworkConfig{
		ID:          NetworkSolanaDevnet,
		USDCMint:    "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Decimals:    USDCDecimals,
		RPCEndpoint: rpc.DevNet_RPC,
	}
)

// NetworkByID resolves a network identifier to its configuration.
// The bare family aliases "solana" and "solana-testnet" are accepted for
// compatibility with proofs produced by older clients.
func NetworkByID(id string) (NetworkConfig, error) {
	switch id {
	case NetworkSolanaMainnet, "solana":
		return SolanaMainnet, nil
	case NetworkSolanaDevnet, "solana-testnet":
		return SolanaDevnet, nil
	case "":
		return NetworkConfig{}, fmt.Errorf("%w: network cannot be empty", ErrUnsupportedNetwork)
	default:
		return NetworkConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, id)
	}
}

// SupportedNetworks lists the network identifiers this module evaluates.
func SupportedNetworks() []string {
	return []string{NetworkSolanaMainnet, NetworkSolanaDevnet}
}

// SupportedSchemes lists the payment schemes this module evaluates.
func SupportedSchemes() []string {
	return []string{SchemeExact, SchemeChannel}
}

// USDToBaseUnits converts a USD price to integer base units of the asset.
// Rejects zero and negative prices.
func USDToBaseUnits(priceUSD float64, decimals int) (uint64, error) {
	if priceUSD <= 0 {
		return 0, fmt.Errorf("%w: price must be positive, got %v", ErrInvalidAmount, priceUSD)
	}
	units := math.Round(priceUSD * math.Pow10(decimals))
	if units < 1 || units > math.MaxUint64 {
		return 0, fmt.Errorf("%w: price %v out of range", ErrInvalidAmount, priceUSD)
	}
	return uint64(units), nil
}

// DeriveTokenAccount derives the associated token account for a wallet and
// mint. This is the account a transfer must credit for the wallet to receive
// the tokens.
func DeriveTokenAccount(wallet, mint string) (string, error) {
	owner, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return "", fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}
	m, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return "", fmt.Errorf("invalid mint address %q: %w", mint, err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(owner, m)
	if err != nil {
		return "", fmt.Errorf("failed to derive token account: %w", err)
	}
	return ata.String(), nil
}

// FindMatchingRequirement returns the first requirement in accepts order
// whose scheme and network match the presented payment.
func FindMatchingRequirement(payment PaymentPayload, requirements []PaymentRequirement) (*PaymentRequirement, error) {
	paymentNet, err := NetworkByID(payment.Network)
	if err != nil {
		return nil, err
	}
	for i := range requirements {
		reqNet, err := NetworkByID(requirements[i].Network)
		if err != nil {
			continue
		}
		if requirements[i].Scheme == payment.Scheme && reqNet.ID == paymentNet.ID {
			return &requirements[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no requirement accepts scheme %q on network %q",
		ErrUnsupportedScheme, payment.Scheme, payment.Network)
}
