// Package x402http gates net/http handlers behind x402 payments and serves
// the facilitator API. Framework adapters live in the chi and gin
// subpackages.
package x402http

import (
	"encoding/json"
	"net/http"

	"github.com/paylith/x402-solana"
	"github.com/paylith/x402-solana/encoding"
)

// Protocol headers.
const (
	// HeaderPayment carries the base64 payment proof on requests.
	HeaderPayment = "X-PAYMENT"

	// HeaderPaymentResponse carries the base64 receipt on gated responses.
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// SendPaymentRequired writes a 402 response with the given requirements
// document as its JSON body.
func SendPaymentRequired(w http.ResponseWriter, requirements x402.PaymentRequirementsResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	_ = json.NewEncoder(w).Encode(requirements)
}

// RejectPayment writes a 402 response whose error message names the failure,
// re-offering the same payment options so the client can retry correctly.
func RejectPayment(w http.ResponseWriter, requirements x402.PaymentRequirementsResponse, kind x402.ErrorKind, detail string) {
	requirements.Error = string(kind)
	if detail != "" {
		requirements.Error = string(kind) + ": " + detail
	}
	SendPaymentRequired(w, requirements)
}

// SetReceiptHeader encodes a receipt into the X-PAYMENT-RESPONSE header.
// Must run before the response status is written.
func SetReceiptHeader(w http.ResponseWriter, receipt x402.PaymentReceipt) error {
	encoded, err := encoding.EncodeReceipt(receipt)
	if err != nil {
		return err
	}
	w.Header().Set(HeaderPaymentResponse, encoded)
	return nil
}

// ResourceURL reconstructs the absolute URL of a request, the identifier
// payments bind to.
func ResourceURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.Path
}
