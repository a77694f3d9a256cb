package verify

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/paylith/x402-solana"
	"github.com/paylith/x402-solana/ledger"
)

// claim is a channel payload with its numeric fields parsed.
type claim struct {
	channelID solana.PublicKey
	amount    uint64
	nonce     uint64
	expiry    uint64
	signature []byte
}

// parseClaim converts the wire payload into a claim, rejecting anything
// structurally off.
func parseClaim(payload x402.ChannelPayload) (claim, *x402.VerificationResult) {
	var c claim

	channelID, err := solana.PublicKeyFromBase58(payload.ChannelID)
	if err != nil {
		return c, x402.Invalid(x402.KindChannelInvalidPayload, "channelId is not a base58 account")
	}
	c.channelID = channelID

	if c.amount, err = strconv.ParseUint(payload.Amount, 10, 64); err != nil {
		return c, x402.Invalid(x402.KindChannelInvalidPayload, "amount is not a decimal integer")
	}
	if c.amount == 0 {
		return c, x402.Invalid(x402.KindChannelInvalidPayload, "amount must be positive")
	}
	if c.nonce, err = strconv.ParseUint(payload.Nonce, 10, 64); err != nil {
		return c, x402.Invalid(x402.KindChannelInvalidPayload, "nonce is not a decimal integer")
	}
	if payload.Expiry != "" {
		if c.expiry, err = strconv.ParseUint(payload.Expiry, 10, 64); err != nil {
			return c, x402.Invalid(x402.KindChannelInvalidPayload, "expiry is not a decimal integer")
		}
	}

	sig, err := base64.StdEncoding.DecodeString(payload.Signature)
	if err != nil {
		if sig, err = base64.RawURLEncoding.DecodeString(payload.Signature); err != nil {
			return c, x402.Invalid(x402.KindChannelInvalidPayload, "signature is not base64")
		}
	}
	if len(sig) != ed25519.SignatureSize {
		return c, x402.Invalid(x402.KindChannelInvalidPayload,
			fmt.Sprintf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig)))
	}
	c.signature = sig

	return c, nil
}

// VerifyClaim verifies a "channel" proof: an off-chain claim against an open
// settlement channel. Checks run cheapest first; the Ed25519 verification is
// last so malformed or stale claims never reach it. Claims carry monotonic
// nonces, so the replay cache is not involved.
func (v *Verifier) VerifyClaim(ctx context.Context, payload x402.ChannelPayload, requirement x402.PaymentRequirement) *x402.VerificationResult {
	c, rejected := parseClaim(payload)
	if rejected != nil {
		return rejected
	}

	required, err := strconv.ParseUint(requirement.MaxAmountRequired, 10, 64)
	if err != nil {
		return x402.Invalid(x402.KindInternal, "requirement amount is not a decimal integer")
	}
	server, err := solana.PublicKeyFromBase58(requirement.PayTo)
	if err != nil {
		return x402.Invalid(x402.KindInternal, "requirement payTo is not a base58 account")
	}

	account, err := v.client.GetAccountInfo(ctx, c.channelID)
	if err != nil {
		return x402.Invalid(x402.KindRpcError, fmt.Sprintf("ledger lookup failed: %v", err))
	}
	if account == nil {
		return x402.Invalid(x402.KindChannelNotFound, "channel account does not exist")
	}
	channel, err := ledger.DecodeChannelAccount(c.channelID, account.Data.GetBinary())
	if err != nil {
		return x402.Invalid(x402.KindOf(err), err.Error())
	}

	if channel.Status != ledger.ChannelOpen {
		return x402.Invalid(x402.KindChannelNotOpen,
			fmt.Sprintf("channel is %s", channel.Status))
	}
	if !channel.Server.Equals(server) {
		return x402.Invalid(x402.KindChannelWrongServer, "channel server does not match payTo")
	}
	if c.nonce <= channel.Nonce {
		return x402.Invalid(x402.KindChannelInvalidNonce,
			fmt.Sprintf("claim nonce %d not above channel nonce %d", c.nonce, channel.Nonce))
	}
	if c.amount <= channel.ServerClaimed {
		return x402.Invalid(x402.KindChannelAmountBackwards,
			fmt.Sprintf("claim amount %d not above already-claimed %d", c.amount, channel.ServerClaimed))
	}

	increment := c.amount - channel.ServerClaimed
	minIncrement := required
	if v.opts.MinClaimIncrement > minIncrement {
		minIncrement = v.opts.MinClaimIncrement
	}
	if increment < minIncrement {
		return x402.Invalid(x402.KindTransferMismatch,
			fmt.Sprintf("claim increment %d below required %d", increment, minIncrement))
	}

	if c.amount > channel.ClientDeposit+channel.CreditLimit {
		return x402.Invalid(x402.KindChannelInsufficientBalance,
			fmt.Sprintf("claim amount %d exceeds deposit %d plus credit %d",
				c.amount, channel.ClientDeposit, channel.CreditLimit))
	}

	if !v.opts.SkipExpiryCheck {
		now := uint64(v.now().Unix())
		if c.expiry != 0 && c.expiry < now {
			return x402.Invalid(x402.KindChannelClaimExpired, "claim expiry has passed")
		}
		if channel.Expiry != 0 && uint64(channel.Expiry) < now {
			return x402.Invalid(x402.KindChannelNotOpen, "channel has expired")
		}
	}

	message := ledger.ClaimMessage(channel.ChannelID, channel.Server, c.amount, c.nonce, c.expiry)
	if !ed25519.Verify(channel.Client[:], message, c.signature) {
		return x402.Invalid(x402.KindChannelInvalidSignature, "claim signature does not verify under channel client")
	}

	v.log.Debug("claim verified",
		"scheme", x402.SchemeChannel,
		"channel", payload.ChannelID,
		"nonce", c.nonce,
		"increment", increment)

	return &x402.VerificationResult{
		Valid: true,
		Transfer: &x402.TransferRecord{
			Source:      channel.Client.String(),
			Destination: channel.Server.String(),
			Authority:   channel.Client.String(),
			Amount:      increment,
			Mint:        requirement.Asset,
		},
		Signature: payload.Signature,
	}
}
