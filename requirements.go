package x402

import (
	"fmt"
	"strconv"
)

// DefaultMaxTimeoutSeconds is the default validity window for a settlement
// transaction at verification time.
const DefaultMaxTimeoutSeconds = 300

// GeneratorConfig configures a RequirementsGenerator.
type GeneratorConfig struct {
	// Network selects the ledger network and USDC mint.
	Network NetworkConfig

	// RecipientWallet is the wallet that receives payments. The generator
	// derives the wallet's USDC token account once at construction and
	// advertises it as payTo.
	RecipientWallet string

	// Scheme is the advertised scheme; defaults to "exact".
	Scheme string

	// MaxTimeoutSeconds defaults to DefaultMaxTimeoutSeconds.
	MaxTimeoutSeconds int

	// Description is attached to generated requirements. Not verified.
	Description string

	// MimeType defaults to "application/json". Not verified.
	MimeType string
}

// PriceTier is one entry of a tiered price list for GenerateMultiple.
type PriceTier struct {
	// PriceUSD is the tier price in display units; must be positive.
	PriceUSD float64

	// Scheme overrides the generator scheme for this tier when non-empty.
	Scheme string

	// Description overrides the generator description when non-empty.
	Description string
}

// RequirementsGenerator produces 402 Payment Required documents for a fixed
// recipient and network. It is immutable after construction and safe for
// concurrent use.
type RequirementsGenerator struct {
	network      NetworkConfig
	wallet       string
	tokenAccount string
	scheme       string
	timeout      int
	desc         string
	mimeType     string
}

// NewRequirementsGenerator validates the configuration, derives the recipient
// token account, and returns a ready generator.
func NewRequirementsGenerator(cfg GeneratorConfig) (*RequirementsGenerator, error) {
	if cfg.Network.ID == "" {
		return nil, fmt.Errorf("%w: network is required", ErrUnsupportedNetwork)
	}
	if cfg.RecipientWallet == "" {
		return nil, fmt.Errorf("recipientWallet: cannot be empty")
	}

	scheme := cfg.Scheme
	if scheme == "" {
		scheme = SchemeExact
	}
	switch scheme {
	case SchemeExact, SchemeChannel:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}

	timeout := cfg.MaxTimeoutSeconds
	if timeout == 0 {
		timeout = DefaultMaxTimeoutSeconds
	}
	if timeout < 0 {
		return nil, fmt.Errorf("maxTimeoutSeconds: cannot be negative: %d", timeout)
	}

	mimeType := cfg.MimeType
	if mimeType == "" {
		mimeType = "application/json"
	}

	// The token account is derived once here; exact payments must credit
	// it, while channel claims authorize the wallet key itself.
	ata, err := DeriveTokenAccount(cfg.RecipientWallet, cfg.Network.USDCMint)
	if err != nil {
		return nil, err
	}

	return &RequirementsGenerator{
		network:      cfg.Network,
		wallet:       cfg.RecipientWallet,
		tokenAccount: ata,
		scheme:       scheme,
		timeout:      timeout,
		desc:         cfg.Description,
		mimeType:     mimeType,
	}, nil
}

// PayTo returns the advertised payment destination for the given scheme.
func (g *RequirementsGenerator) PayTo(scheme string) string {
	if scheme == SchemeChannel {
		return g.wallet
	}
	return g.tokenAccount
}

// Requirement builds a single PaymentRequirement for the given USD price and
// resource identifier.
func (g *RequirementsGenerator) Requirement(priceUSD float64, resource string) (PaymentRequirement, error) {
	units, err := USDToBaseUnits(priceUSD, g.network.Decimals)
	if err != nil {
		return PaymentRequirement{}, err
	}
	return PaymentRequirement{
		Scheme:            g.scheme,
		Network:           g.network.ID,
		MaxAmountRequired: strconv.FormatUint(units, 10),
		Asset:             g.network.USDCMint,
		PayTo:             g.PayTo(g.scheme),
		Resource:          resource,
		Description:       g.desc,
		MimeType:          g.mimeType,
		MaxTimeoutSeconds: g.timeout,
	}, nil
}

// Generate produces a 402 body with a single accept entry.
func (g *RequirementsGenerator) Generate(priceUSD float64, resource string) (PaymentRequirementsResponse, error) {
	req, err := g.Requirement(priceUSD, resource)
	if err != nil {
		return PaymentRequirementsResponse{}, err
	}
	return PaymentRequirementsResponse{
		X402Version: ProtocolVersion,
		Error:       "Payment required for this resource",
		Accepts:     []PaymentRequirement{req},
	}, nil
}

// GenerateMultiple produces a 402 body with one accept entry per tier,
// preserving tier order.
func (g *RequirementsGenerator) GenerateMultiple(tiers []PriceTier, resource string) (PaymentRequirementsResponse, error) {
	if len(tiers) == 0 {
		return PaymentRequirementsResponse{}, fmt.Errorf("tiers: cannot be empty")
	}

	accepts := make([]PaymentRequirement, 0, len(tiers))
	for i, tier := range tiers {
		req, err := g.Requirement(tier.PriceUSD, resource)
		if err != nil {
			return PaymentRequirementsResponse{}, fmt.Errorf("tier %d: %w", i, err)
		}
		if tier.Scheme != "" {
			req.Scheme = tier.Scheme
			req.PayTo = g.PayTo(tier.Scheme)
		}
		if tier.Description != "" {
			req.Description = tier.Description
		}
		accepts = append(accepts, req)
	}

	return PaymentRequirementsResponse{
		X402Version: ProtocolVersion,
		Error:       "Payment required for this resource",
		Accepts:     accepts,
	}, nil
}
