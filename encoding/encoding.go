// Package encoding implements the wire codec for x402 payment data: the
// X-PAYMENT proof header, the 402 requirements document and the
// X-PAYMENT-RESPONSE receipt, all carried as base64-encoded UTF-8 JSON.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"unicode/utf8"

	"github.com/paylith/x402-solana"
)

// DecodeBase64 decodes standard or url-safe base64, with or without padding.
// Clients in the wild emit both alphabets; the canonical encode form is
// standard base64 with padding.
func DecodeBase64(encoded string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		decoded, err := enc.DecodeString(encoded)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// EncodePayment converts a PaymentPayload to a base64-encoded JSON string
// suitable for the X-PAYMENT header.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", x402.NewPaymentError(x402.KindInternal, "failed to marshal payment", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// DecodePayment converts an X-PAYMENT header value to a PaymentPayload.
// It performs the structural checks of the codec contract: base64, UTF-8,
// well-formed JSON, required envelope fields, and protocol version 1.
// Semantic validation of the payload body is the verifier's job.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload

	if encoded == "" {
		return payment, x402.NewPaymentError(x402.KindInvalidHeader, "empty header", nil)
	}

	decoded, err := DecodeBase64(encoded)
	if err != nil {
		return payment, x402.NewPaymentError(x402.KindInvalidHeader, "invalid base64", err)
	}
	if !utf8.Valid(decoded) {
		return payment, x402.NewPaymentError(x402.KindInvalidHeader, "header is not valid UTF-8", nil)
	}

	if err := json.Unmarshal(decoded, &payment); err != nil {
		return payment, x402.NewPaymentError(x402.KindInvalidHeader, "malformed JSON", err)
	}

	if payment.X402Version != x402.ProtocolVersion {
		return payment, x402.NewPaymentError(x402.KindUnsupportedProtocolVersion,
			"unsupported x402 version", x402.ErrUnsupportedVersion)
	}
	if payment.Scheme == "" {
		return payment, x402.NewPaymentError(x402.KindInvalidHeader, "missing scheme", nil)
	}
	if payment.Network == "" {
		return payment, x402.NewPaymentError(x402.KindInvalidHeader, "missing network", nil)
	}
	if len(payment.Payload) == 0 {
		return payment, x402.NewPaymentError(x402.KindInvalidHeader, "missing payload", nil)
	}

	return payment, nil
}

// EncodeRequirements converts a PaymentRequirementsResponse to base64 JSON.
func EncodeRequirements(requirements x402.PaymentRequirementsResponse) (string, error) {
	reqJSON, err := json.Marshal(requirements)
	if err != nil {
		return "", x402.NewPaymentError(x402.KindInternal, "failed to marshal requirements", err)
	}
	return base64.StdEncoding.EncodeToString(reqJSON), nil
}

// DecodeRequirements converts base64 JSON to a PaymentRequirementsResponse.
func DecodeRequirements(encoded string) (x402.PaymentRequirementsResponse, error) {
	var requirements x402.PaymentRequirementsResponse

	decoded, err := DecodeBase64(encoded)
	if err != nil {
		return requirements, x402.NewPaymentError(x402.KindInvalidHeader, "invalid base64", err)
	}
	if err := json.Unmarshal(decoded, &requirements); err != nil {
		return requirements, x402.NewPaymentError(x402.KindInvalidHeader, "malformed JSON", err)
	}
	return requirements, nil
}

// EncodeReceipt converts a PaymentReceipt to a base64-encoded JSON string
// suitable for the X-PAYMENT-RESPONSE header.
func EncodeReceipt(receipt x402.PaymentReceipt) (string, error) {
	receiptJSON, err := json.Marshal(receipt)
	if err != nil {
		return "", x402.NewPaymentError(x402.KindInternal, "failed to marshal receipt", err)
	}
	return base64.StdEncoding.EncodeToString(receiptJSON), nil
}

// DecodeReceipt converts an X-PAYMENT-RESPONSE header value to a PaymentReceipt.
func DecodeReceipt(encoded string) (x402.PaymentReceipt, error) {
	var receipt x402.PaymentReceipt

	decoded, err := DecodeBase64(encoded)
	if err != nil {
		return receipt, x402.NewPaymentError(x402.KindInvalidHeader, "invalid base64", err)
	}
	if err := json.Unmarshal(decoded, &receipt); err != nil {
		return receipt, x402.NewPaymentError(x402.KindInvalidHeader, "malformed JSON", err)
	}
	return receipt, nil
}
