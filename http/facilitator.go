package x402http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paylith/x402-solana"
	"github.com/paylith/x402-solana/facilitator"
)

// FacilitatorServer exposes a facilitator.Interface over HTTP:
// POST /verify, POST /settle and GET /supported.
type FacilitatorServer struct {
	impl facilitator.Interface
	log  *slog.Logger
}

// NewFacilitatorServer wraps a facilitator implementation for serving.
func NewFacilitatorServer(impl facilitator.Interface, log *slog.Logger) *FacilitatorServer {
	if log == nil {
		log = slog.Default()
	}
	return &FacilitatorServer{impl: impl, log: log}
}

// Routes returns a chi router with the facilitator endpoints, mountable
// under any prefix.
func (s *FacilitatorServer) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/verify", s.handleVerify)
	r.Post("/settle", s.handleSettle)
	r.Get("/supported", s.handleSupported)
	return r
}

func (s *FacilitatorServer) decodeRequest(w http.ResponseWriter, r *http.Request) (facilitator.VerifyRequest, bool) {
	var req facilitator.VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return req, false
	}
	if req.X402Version != x402.ProtocolVersion {
		s.writeError(w, http.StatusBadRequest, "unsupported x402 version")
		return req, false
	}
	if req.PaymentHeader == "" {
		s.writeError(w, http.StatusBadRequest, "paymentHeader is required")
		return req, false
	}
	return req, true
}

func (s *FacilitatorServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.impl.Verify(r.Context(), req.PaymentHeader, req.PaymentRequirements)
	if err != nil {
		s.log.Error("verify failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "verification unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *FacilitatorServer) handleSettle(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.impl.Settle(r.Context(), req.PaymentHeader, req.PaymentRequirements)
	if err != nil {
		s.log.Error("settle failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "settlement unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *FacilitatorServer) handleSupported(w http.ResponseWriter, r *http.Request) {
	resp, err := s.impl.Supported(r.Context())
	if err != nil {
		s.log.Error("supported failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *FacilitatorServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *FacilitatorServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
