package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paylith/x402-solana"
)

// Client timeouts. Settlement waits on a ledger round trip and gets more room.
const (
	DefaultVerifyTimeout = 10 * time.Second
	DefaultSettleTimeout = 30 * time.Second
)

// Client talks to a remote facilitator service over HTTP. It implements
// Interface so callers can swap it for a Local without changes.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	verifyTimeout time.Duration
	settleTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeouts overrides the per-operation timeouts.
func WithTimeouts(verify, settle time.Duration) ClientOption {
	return func(c *Client) {
		if verify > 0 {
			c.verifyTimeout = verify
		}
		if settle > 0 {
			c.settleTimeout = settle
		}
	}
}

// NewClient creates a facilitator client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		verifyTimeout: DefaultVerifyTimeout,
		settleTimeout: DefaultSettleTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) post(ctx context.Context, path string, timeout time.Duration, reqBody, respBody any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", x402.ErrFacilitatorUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d: %s", x402.ErrFacilitatorUnavailable, path, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Verify implements Interface against POST /verify.
func (c *Client) Verify(ctx context.Context, paymentHeader string, requirement x402.PaymentRequirement) (*VerifyResponse, error) {
	var out VerifyResponse
	err := c.post(ctx, "/verify", c.verifyTimeout, VerifyRequest{
		X402Version:         x402.ProtocolVersion,
		PaymentHeader:       paymentHeader,
		PaymentRequirements: requirement,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle implements Interface against POST /settle.
func (c *Client) Settle(ctx context.Context, paymentHeader string, requirement x402.PaymentRequirement) (*SettleResponse, error) {
	var out SettleResponse
	err := c.post(ctx, "/settle", c.settleTimeout, VerifyRequest{
		X402Version:         x402.ProtocolVersion,
		PaymentHeader:       paymentHeader,
		PaymentRequirements: requirement,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Supported implements Interface against GET /supported.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("build /supported request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: /supported: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read /supported response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: /supported returned %d: %s", x402.ErrFacilitatorUnavailable, resp.StatusCode, body)
	}

	var out SupportedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode /supported response: %w", err)
	}
	return &out, nil
}

var _ Interface = (*Client)(nil)
