// Package client implements the mobile side of the handshake protocol: the
// polling loop that resolves a challenge and the signed-envelope
// construction for protected calls.
package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clearshot/handshake/core"
	"github.com/clearshot/handshake/ports"
)

// DefaultPollInterval is how often the client polls the status endpoint
// while a challenge is pending.
const DefaultPollInterval = 2500 * time.Millisecond

// StartResult is the grant returned by the start endpoint.
type StartResult struct {
	ChallengeID    string `json:"challengeId"`
	CallbackTarget string `json:"callbackTarget"`
	ExpiresInMs    int64  `json:"expiresInMs"`
}

// AuthResult is the terminal outcome of a successful poll.
type AuthResult struct {
	Token       string
	IdentityKey string
}

// Client talks to the handshake service. Until an identity (a signer) is
// attached, protected calls fail fast without network I/O.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	signer       ports.Signer
	token        string
	pollInterval time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval overrides the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithSigner attaches the wallet signing capability up front.
func WithSigner(s ports.Signer) Option {
	return func(c *Client) { c.signer = s }
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseSigner attaches the wallet signing capability after construction.
func (c *Client) UseSigner(s ports.Signer) { c.signer = s }

// Token returns the session token obtained from a successful poll.
func (c *Client) Token() string { return c.token }

// Start begins an authentication attempt.
func (c *Client) Start(ctx context.Context) (*StartResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/start", nil)
	if err != nil {
		return nil, err
	}

	var out StartResult
	if err := c.doJSON(req, &out); err != nil {
		return nil, fmt.Errorf("failed to start authentication: %w", err)
	}
	return &out, nil
}

// Poll polls the status endpoint until the challenge reaches a terminal
// state or ctx is cancelled. The server sends no cancellation signal;
// stopping is entirely the client's responsibility.
func (c *Client) Poll(ctx context.Context, challengeID string) (*AuthResult, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		res, err := c.pollOnce(ctx, challengeID)
		if err != nil {
			return nil, err
		}

		switch res.Status {
		case "success":
			c.token = res.Token
			return &AuthResult{Token: res.Token, IdentityKey: res.Identity}, nil
		case "expired":
			return nil, core.ErrExpired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type statusResponse struct {
	Status   string `json:"status"`
	Token    string `json:"token"`
	Identity string `json:"identity"`
}

func (c *Client) pollOnce(ctx context.Context, challengeID string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/status/"+challengeID, nil)
	if err != nil {
		return nil, err
	}

	var out statusResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, fmt.Errorf("failed to poll status: %w", err)
	}
	return &out, nil
}

// Do performs a protected call carrying a signed envelope. It fails fast
// with core.ErrUnauthenticated before any network I/O when no identity is
// attached.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if c.signer == nil || c.signer.PublicKey() == "" {
		return nil, fmt.Errorf("no identity attached: %w", core.ErrUnauthenticated)
	}

	env := &core.Envelope{
		Method:      method,
		Path:        path,
		Body:        body,
		Nonce:       core.NewNonce(),
		Timestamp:   time.Now(),
		IdentityKey: c.signer.PublicKey(),
	}
	sig, err := c.signer.Sign(ctx, env.CanonicalMessage())
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(core.HeaderNonce, env.Nonce)
	req.Header.Set(core.HeaderTimestamp, env.TimestampString())
	req.Header.Set(core.HeaderSignature, hex.EncodeToString(sig))
	req.Header.Set(core.HeaderIdentityKey, env.IdentityKey)

	return c.httpClient.Do(req)
}

// Profile fetches the registered record for the attached identity.
func (c *Client) Profile(ctx context.Context) (map[string]any, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/api/profile", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile request failed with status %d: %w", resp.StatusCode, core.ErrUnauthenticated)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
