// Package gin provides Gin-compatible middleware for x402 payment gating.
// It translates gin.Context to the stdlib middleware in the http package
// and mirrors the verified payment into the Gin context.
package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paylith/x402-solana"
	x402http "github.com/paylith/x402-solana/http"
)

// PaymentKey is the Gin context key the verified payment is stored under.
const PaymentKey = "x402_payment"

// Middleware creates an x402 payment middleware for Gin.
//
// Example usage:
//
//	r := gin.Default()
//	r.GET("/premium/data",
//	    ginx402.Middleware(x402http.MiddlewareConfig{
//	        PriceUSD:  0.01,
//	        Generator: generator,
//	        Verifier:  verifier,
//	        Cache:     cache,
//	    }),
//	    func(c *gin.Context) {
//	        if info, ok := ginx402.Payment(c); ok {
//	            c.JSON(200, gin.H{"payer": info.Payer})
//	        }
//	    })
func Middleware(cfg x402http.MiddlewareConfig) gin.HandlerFunc {
	wrapped := x402http.Middleware(cfg)

	return func(c *gin.Context) {
		verified := false
		wrapped(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The stdlib middleware attached the payment to r's context;
			// carry it over so both lookup styles work in handlers.
			c.Request = r
			if info, ok := x402http.PaymentFromContext(r.Context()); ok {
				c.Set(PaymentKey, info)
			}
			verified = true
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)

		if !verified {
			// The middleware already wrote the 402 (or error) response.
			c.Abort()
		}
	}
}

// Payment returns the verified payment stored by the middleware.
func Payment(c *gin.Context) (x402.PaymentInfo, bool) {
	value, ok := c.Get(PaymentKey)
	if !ok {
		return x402.PaymentInfo{}, false
	}
	info, ok := value.(x402.PaymentInfo)
	return info, ok
}
