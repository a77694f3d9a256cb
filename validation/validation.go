// Package validation provides structural validation for x402 requirements
// and proof payloads. Checks are purely syntactic; nothing here touches the
// ledger. The facilitator /verify fast path is built on this package.
package validation

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"regexp"

	"github.com/paylith/x402-solana"
)

// base58Regex matches Solana base58 addresses and channel IDs (32-44 chars).
var base58Regex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// signatureRegex matches base58 ledger signatures (64 bytes, 86-88 chars).
var signatureRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{86,88}$`)

// decimalRegex matches non-negative decimal integer strings.
var decimalRegex = regexp.MustCompile(`^[0-9]+$`)

// ValidateAmount validates that an amount string is a positive decimal integer.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}
	if amt.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0, got: %s", amount)
	}
	return nil
}

// ValidateAddress validates a base58 ledger account identifier.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !base58Regex.MatchString(address) {
		return fmt.Errorf("invalid address format: %s (expected base58 string 32-44 chars)", address)
	}
	return nil
}

// ValidatePaymentRequirement performs structural validation of a requirement:
// amount, network, addresses, scheme and timeout.
func ValidatePaymentRequirement(req x402.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if _, err := x402.NetworkByID(req.Network); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}

	if req.Asset == "" {
		return fmt.Errorf("invalid requirement: asset address cannot be empty")
	}
	if err := ValidateAddress(req.Asset); err != nil {
		return fmt.Errorf("invalid requirement: asset %w", err)
	}

	switch req.Scheme {
	case x402.SchemeExact, x402.SchemeChannel:
	case "":
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirement: unsupported scheme %s", req.Scheme)
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirement: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	return nil
}

// fieldCheck is one entry of a payload validation table.
type fieldCheck struct {
	name     string
	required bool
	check    func(value string) error
}

func checkBase58Address(value string) error {
	if !base58Regex.MatchString(value) {
		return fmt.Errorf("expected base58 account (32-44 chars)")
	}
	return nil
}

func checkBase58Signature(value string) error {
	if !signatureRegex.MatchString(value) {
		return fmt.Errorf("expected base58 signature (86-88 chars)")
	}
	return nil
}

func checkDecimal(value string) error {
	if !decimalRegex.MatchString(value) {
		return fmt.Errorf("expected decimal integer string")
	}
	return nil
}

func checkEd25519Signature(value string) error {
	sig, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		if sig, err = base64.RawURLEncoding.DecodeString(value); err != nil {
			return fmt.Errorf("expected base64 signature")
		}
	}
	if len(sig) != 64 {
		return fmt.Errorf("expected 64-byte signature, got %d bytes", len(sig))
	}
	return nil
}

// exactPayloadTable lists the field checks for the "exact" proof body.
var exactPayloadTable = []fieldCheck{
	{name: "signature", required: true, check: checkBase58Signature},
}

// channelPayloadTable lists the field checks for the "channel" proof body.
var channelPayloadTable = []fieldCheck{
	{name: "channelId", required: true, check: checkBase58Address},
	{name: "amount", required: true, check: checkDecimal},
	{name: "nonce", required: true, check: checkDecimal},
	{name: "expiry", required: false, check: checkDecimal},
	{name: "signature", required: true, check: checkEd25519Signature},
}

func runTable(table []fieldCheck, fields map[string]string) error {
	for _, fc := range table {
		value, ok := fields[fc.name]
		if !ok || value == "" {
			if fc.required {
				return fmt.Errorf("%s: missing required field", fc.name)
			}
			continue
		}
		if err := fc.check(value); err != nil {
			return fmt.Errorf("%s: %w", fc.name, err)
		}
	}
	return nil
}

// ValidateExactPayload structurally validates an "exact" proof body.
func ValidateExactPayload(payload x402.ExactPayload) error {
	return runTable(exactPayloadTable, map[string]string{
		"signature": payload.Signature,
	})
}

// ValidateChannelPayload structurally validates a "channel" proof body.
func ValidateChannelPayload(payload x402.ChannelPayload) error {
	return runTable(channelPayloadTable, map[string]string{
		"channelId": payload.ChannelID,
		"amount":    payload.Amount,
		"nonce":     payload.Nonce,
		"expiry":    payload.Expiry,
		"signature": payload.Signature,
	})
}

// ValidatePaymentPayload validates the proof envelope and its scheme-specific
// body. This is the full structural check the facilitator /verify performs.
func ValidatePaymentPayload(payment x402.PaymentPayload) error {
	if payment.X402Version != x402.ProtocolVersion {
		return fmt.Errorf("unsupported x402 version: %d", payment.X402Version)
	}
	if payment.Scheme == "" {
		return fmt.Errorf("scheme cannot be empty")
	}
	if _, err := x402.NetworkByID(payment.Network); err != nil {
		return err
	}
	if len(payment.Payload) == 0 {
		return fmt.Errorf("payload cannot be empty")
	}

	switch payment.Scheme {
	case x402.SchemeExact:
		body, err := payment.ExactPayload()
		if err != nil {
			return fmt.Errorf("malformed exact payload: %w", err)
		}
		return ValidateExactPayload(body)
	case x402.SchemeChannel:
		body, err := payment.ChannelPayload()
		if err != nil {
			return fmt.Errorf("malformed channel payload: %w", err)
		}
		return ValidateChannelPayload(body)
	default:
		return fmt.Errorf("unsupported scheme: %s", payment.Scheme)
	}
}
