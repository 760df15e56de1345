// Package kiroclient constructs and sends the south-side HTTP requests
// that carry the Kiro RPC protocol, per spec §4.H.
package kiroclient

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/kiro-claude-bridge/internal/apierror"
)

// Identity carries the per-process and per-credential values that get
// stamped onto every south-side request's headers.
type Identity struct {
	KiroVersion    string
	SystemVersion  string
	NodeVersion    string
	DeviceFingerprint string
}

// Client sends requests to the Kiro south side.
type Client struct {
	httpClient *http.Client
	proxyURL   string
}

// Config configures a Client.
type Config struct {
	// ProxyURL, if set, is an http://, https://, or socks5:// URL
	// (optionally with basic auth) to dial the south side through.
	ProxyURL string
	// ConnectTimeout bounds the time to establish the TCP/TLS connection.
	// Through a SOCKS5 proxy only the TLS handshake is bounded.
	ConnectTimeout time.Duration
	// RequestTimeout bounds a non-streaming round-trip.
	RequestTimeout time.Duration
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	transport := buildProxyTransport(cfg.ProxyURL)
	if transport == nil {
		transport = &http.Transport{}
	}
	if cfg.ConnectTimeout > 0 {
		transport.TLSHandshakeTimeout = cfg.ConnectTimeout
		if transport.DialContext == nil {
			transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
		}
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		proxyURL:   cfg.ProxyURL,
	}
}

// StickySystemVersion returns a random 8-hex-character system-version
// identifier. Every call generates a new value; the function does not
// cache it.
func StickySystemVersion() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "0.0.0.0"
	}
	return hex.EncodeToString(buf)
}

// Response is a south-side HTTP response with its body left open for the
// caller to drain (streaming) or read to completion (non-streaming).
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Send constructs and issues a south-side request for kind, trying the
// endpoints Endpoints returns for region in order, and returns the first
// 2xx response for the caller to decode. A CredentialTransient failure
// moves on to the next endpoint; any other error is returned at once. When
// every endpoint fails transiently, the last error is returned (the
// orchestrator treats CredentialTransient the same whether it came from a
// network error here or a non-2xx response).
func (c *Client) Send(ctx context.Context, region string, kind RequestKind, accessToken string, identity Identity, body []byte) (*Response, error) {
	candidates := Endpoints(region, kind)
	var lastErr error
	for _, ep := range candidates {
		resp, err := c.sendOne(ctx, ep, accessToken, identity, body)
		if err == nil {
			return resp, nil
		}
		var ae *apierror.Error
		if !errors.As(err, &ae) || !ae.Kind.Transient() {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) sendOne(ctx context.Context, ep endpoint, accessToken string, identity Identity, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, apierror.New(apierror.KindCredentialTransient, "build south-side request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("x-amzn-kiro-agent-mode", "vibe")
	req.Header.Set("x-amzn-codewhisperer-optout", "true")
	req.Header.Set("Amz-Sdk-Invocation-Id", uuid.New().String())
	req.Header.Set("kiro-version", identity.KiroVersion)
	req.Header.Set("system-version", identity.SystemVersion)
	req.Header.Set("node-version", identity.NodeVersion)
	req.Header.Set("x-device-fingerprint", identity.DeviceFingerprint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apierror.New(apierror.KindCredentialTransient, "south-side request failed", err)
	}

	return classify(resp)
}

// classify maps the south side's HTTP status to the error taxonomy of
// spec §4.H, leaving 2xx responses untouched for the caller to stream or
// buffer.
func classify(resp *http.Response) (*Response, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		resp.Body.Close()
		return nil, apierror.New(apierror.KindCredentialFatal, fmt.Sprintf("south side returned %d", resp.StatusCode), nil)
	case resp.StatusCode == 429:
		resp.Body.Close()
		err := apierror.New(apierror.KindCredentialTransient, "south side rate-limited the request", nil)
		err.RetryAfterHint = true
		return nil, err
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, apierror.New(apierror.KindCredentialTransient, fmt.Sprintf("south side returned %d", resp.StatusCode), nil)
	default:
		resp.Body.Close()
		return nil, apierror.New(apierror.KindCredentialTransient, fmt.Sprintf("south side returned unexpected status %d", resp.StatusCode), nil)
	}
}
