// Package chi provides Chi-compatible middleware for x402 payment gating.
// Chi middleware uses the stdlib http.Handler signature, so this package is
// a thin veneer over the http package.
package chi

import (
	"net/http"

	x402http "github.com/paylith/x402-solana/http"
)

// Middleware creates an x402 payment middleware for Chi.
//
// Example usage:
//
//	generator, _ := x402.NewRequirementsGenerator(x402.GeneratorConfig{
//	    Network:         x402.SolanaDevnet,
//	    RecipientWallet: "9aUn5swQzUTRanaaTwmszxiv89cvFwUCjEBv1vZCoT1u",
//	})
//	r := chi.NewRouter()
//	r.Route("/premium", func(r chi.Router) {
//	    r.Use(chix402.Middleware(x402http.MiddlewareConfig{
//	        PriceUSD:  0.01,
//	        Generator: generator,
//	        Verifier:  verifier,
//	        Cache:     cache,
//	    }))
//	    r.Get("/data", premiumHandler)
//	})
func Middleware(cfg x402http.MiddlewareConfig) func(http.Handler) http.Handler {
	return x402http.Middleware(cfg)
}
