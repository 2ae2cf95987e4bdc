package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

import (
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/tidwall/gjson"
)

import (
	"github.com/nanjiek/pixiu-score/internal/config"
	"github.com/nanjiek/pixiu-score/internal/metrics"
)

const (
	defaultProviderHost = "mainnet.helius-rpc.com"
	providerIdentifier  = "helius"
	apiKeyParam         = "api-key"
	maxBodyBytes        = 8 << 20

	backoffRateLimited = 500 * time.Millisecond
	backoffServerError = 300 * time.Millisecond
	backoffTransport   = 200 * time.Millisecond
)

// Client is a thin JSON-RPC client for the chain data provider.
type Client struct {
	endpoint       string
	apiKey         string
	httpClient     *http.Client
	maxAttempts    int
	attemptTimeout time.Duration
	breaker        Breaker
	sleep          func(ctx context.Context, d time.Duration) error
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option customises a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithBreaker(b Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSleep replaces the backoff sleeper.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// NewClient builds a gateway client from the solana config section.
func NewClient(cfg config.SolanaCfg, opts ...Option) (*Client, error) {
	rawURL := strings.TrimSpace(cfg.RPCURL)
	if rawURL == "" {
		rawURL = config.DefaultRPCURL
	}
	endpoint, err := resolveEndpoint(rawURL, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	c := &Client{
		endpoint:       endpoint,
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{},
		maxAttempts:    cfg.MaxAttempts,
		attemptTimeout: time.Duration(cfg.AttemptTimeoutMs) * time.Millisecond,
		breaker:        NoopBreaker(),
		sleep:          sleepContext,
		logger:         slog.Default(),
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = config.DefaultMaxAttempts
	}
	if c.attemptTimeout <= 0 {
		c.attemptTimeout = config.DefaultAttemptTimeoutMs * time.Millisecond
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// resolveEndpoint appends the API key as a query parameter for the default provider,
// which accepts the key in the query string as well as the bearer header.
func resolveEndpoint(rawURL, apiKey string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid rpc url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid rpc url: %q", rawURL)
	}
	if apiKey == "" {
		return u.String(), nil
	}
	isProvider := strings.EqualFold(u.Hostname(), defaultProviderHost) ||
		strings.Contains(strings.ToLower(rawURL), providerIdentifier)
	q := u.Query()
	if isProvider && q.Get(apiKeyParam) == "" {
		q.Set(apiKeyParam, apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func validateAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", newError(ErrInvalidInput, "", 0, "Please provide a valid wallet address.", nil)
	}
	return trimmed, nil
}

// GetFirstTransactionSignature returns the oldest signature the provider reports for the
// address as a single-element slice. Signatures arrive newest-first.
func (c *Client) GetFirstTransactionSignature(ctx context.Context, address string) ([]SignatureInfo, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return nil, err
	}
	params := []any{addr, SignatureOptions{Commitment: solrpc.CommitmentFinalized}}
	resp, err := call[[]SignatureInfo](ctx, c, MethodGetSignaturesForAddress, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return []SignatureInfo{}, nil
	}
	return []SignatureInfo{resp.Result[len(resp.Result)-1]}, nil
}

// GetTransactionsByAddress returns the signature list of the address.
func (c *Client) GetTransactionsByAddress(ctx context.Context, address string) ([]SignatureInfo, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return nil, err
	}
	resp, err := call[[]SignatureInfo](ctx, c, MethodGetSignaturesForAddress, []any{addr})
	if err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return []SignatureInfo{}, nil
	}
	return resp.Result, nil
}

// GetAssets returns the first page of assets with the grand total.
func (c *Client) GetAssets(ctx context.Context, address string) (AssetsResult, error) {
	addr, err := validateAddress(address)
	if err != nil {
		return AssetsResult{}, err
	}
	resp, err := call[AssetsResult](ctx, c, MethodGetAssetsByOwner, newOwnerAssetsParams(addr))
	if err != nil {
		return AssetsResult{}, err
	}
	return resp.Result, nil
}

func call[T any](ctx context.Context, c *Client, method Method, params any) (Response[T], error) {
	var out Response[T]
	body, err := json.Marshal(Request{
		ID:      requestID,
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return out, newError(ErrInvalidInput, method, 0, "Unable to process your request. Please try again.", err)
	}

	err = c.breaker.Run(resourceName(method), func() error {
		raw, err := c.send(ctx, method, body)
		if err != nil {
			return err
		}
		return decodeEnvelope(method, raw, &out)
	})
	return out, err
}

func decodeEnvelope[T any](method Method, raw []byte, out *Response[T]) error {
	if !gjson.ValidBytes(raw) {
		return newError(ErrProtocol, method, http.StatusOK, "Invalid response from Solana network.", nil)
	}
	if e := gjson.GetBytes(raw, "error"); e.Exists() && e.Type != gjson.Null {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = "Unknown error occurred"
		}
		return newError(ErrProtocol, method, http.StatusOK, msg, nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return newError(ErrProtocol, method, http.StatusOK, "Invalid response from Solana network.", err)
	}
	return nil
}

// send performs the HTTP exchange with retry and backoff. It returns the raw body of the
// first 2xx response.
func (c *Client) send(ctx context.Context, method Method, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		raw, status, err := c.attempt(ctx, method, body)

		var backoff time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, newError(ErrUpstreamUnavailable, method, 0, "Request to Solana network was cancelled.", ctx.Err())
			}
			if !isTransient(err) {
				return nil, newError(ErrUpstreamUnavailable, method, 0, "Unable to connect to Solana network. Please try again.", err)
			}
			lastErr = newError(ErrUpstreamUnavailable, method, 0, "", err)
			backoff = backoffTransport
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, newError(ErrAuthentication, method, status, "Authentication failed. Please check your API key.", nil)
		case status == http.StatusTooManyRequests:
			lastErr = newError(ErrRateLimited, method, status, "Rate limit exceeded. Please try again later.", nil)
			backoff = backoffRateLimited
		case status >= http.StatusInternalServerError:
			lastErr = newError(ErrUpstreamUnavailable, method, status, "Solana network is currently unavailable. Please try again later.", nil)
			backoff = backoffServerError
		case status < 200 || status >= 300:
			return nil, newError(ErrUpstreamUnavailable, method, status, "Unable to connect to Solana network. Please try again.", nil)
		default:
			return raw, nil
		}

		if attempt == c.maxAttempts {
			break
		}
		delay := backoff * time.Duration(attempt)
		c.logger.Warn("rpc attempt failed, retrying",
			"method", method, "attempt", attempt, "backoff", delay, "err", lastErr)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, newError(ErrUpstreamUnavailable, method, 0, "Request to Solana network was cancelled.", err)
		}
	}

	c.logger.Error("rpc attempts exhausted", "method", method, "attempts", c.maxAttempts, "err", lastErr)
	return nil, newError(ErrUpstreamUnavailable, method, statusOf(lastErr),
		"Solana network is currently unavailable. Please try again later.", lastErr)
}

func (c *Client) attempt(ctx context.Context, method Method, body []byte) ([]byte, int, error) {
	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RPCAttempt(string(method), "transport", time.Since(start))
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.RPCAttempt(string(method), outcomeOf(resp.StatusCode, err), time.Since(start))
	if err != nil {
		return nil, 0, err
	}
	return raw, resp.StatusCode, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func statusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

func outcomeOf(status int, readErr error) string {
	switch {
	case readErr != nil:
		return "transport"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status < 200 || status >= 300:
		return "client_error"
	default:
		return "ok"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
