// Package client provides the Go SDK for talking to a registration server:
// subscribing names, keeping dynamic DNS records current, publishing ACME
// DNS-01 challenges, and resolving discovery ids.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNameUnavailable is returned by Subscribe when the name is already taken.
var ErrNameUnavailable = errors.New("name unavailable")

// NameAndToken is the response of a successful Subscribe call.
type NameAndToken struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// Record is the full domain record returned by Info.
type Record struct {
	Token        string `json:"token"`
	LocalName    string `json:"local_name"`
	RemoteName   string `json:"remote_name"`
	DNSChallenge string `json:"dns_challenge"`
	LocalIP      string `json:"local_ip"`
	PublicIP     string `json:"public_ip"`
	Description  string `json:"description"`
	Email        string `json:"email"`
	Timestamp    int64  `json:"timestamp"`
}

// Discovered is one reachable peer returned by Ping or Discover.
type Discovered struct {
	Href string `json:"href"`
	Desc string `json:"desc"`
}

// Client is the registration server SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the server at base, e.g. "https://reg.example.com".
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:       strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe reserves name and returns the token credential for it.
func (c *Client) Subscribe(ctx context.Context, name, description string) (*NameAndToken, error) {
	params := url.Values{"name": {name}}
	if description != "" {
		params.Set("desc", description)
	}

	var nt NameAndToken
	if err := c.get(ctx, "/subscribe", params, &nt); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message == "UnavailableName" {
			return nil, ErrNameUnavailable
		}
		return nil, err
	}
	return &nt, nil
}

// Register reports the device's current LAN address; the server pairs it with
// the public address it observes on the connection.
func (c *Client) Register(ctx context.Context, token, localIP string) error {
	return c.get(ctx, "/register", url.Values{"token": {token}, "local_ip": {localIP}}, nil)
}

// SetDNSConfig publishes the ACME DNS-01 challenge value for the record.
func (c *Client) SetDNSConfig(ctx context.Context, token, challenge string) error {
	return c.get(ctx, "/dnsconfig", url.Values{"token": {token}, "challenge": {challenge}}, nil)
}

// Unsubscribe deletes the record for token.
func (c *Client) Unsubscribe(ctx context.Context, token string) error {
	return c.get(ctx, "/unsubscribe", url.Values{"token": {token}}, nil)
}

// Info returns the full record for token.
func (c *Client) Info(ctx context.Context, token string) (*Record, error) {
	var rec Record
	if err := c.get(ctx, "/info", url.Values{"token": {token}}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Ping lists servers sharing the caller's public network.
func (c *Client) Ping(ctx context.Context) ([]Discovered, error) {
	var results []Discovered
	if err := c.get(ctx, "/ping", nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// AddDiscovery publishes disco as a discovery id for the record behind token.
func (c *Client) AddDiscovery(ctx context.Context, token, disco string) error {
	return c.get(ctx, "/adddiscovery", url.Values{"token": {token}, "disco": {disco}}, nil)
}

// RevokeDiscovery withdraws a discovery id owned by token.
func (c *Client) RevokeDiscovery(ctx context.Context, token, disco string) error {
	return c.get(ctx, "/revokediscovery", url.Values{"token": {token}, "disco": {disco}}, nil)
}

// Discover resolves a discovery id to the owner's reachable addresses.
func (c *Client) Discover(ctx context.Context, disco string) ([]Discovered, error) {
	var results []Discovered
	if err := c.get(ctx, "/discovery", url.Values{"disco": {disco}}, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// get performs a GET request and decodes the JSON response into out when the
// call succeeds and out is non-nil.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errBody) == nil && errBody.Error != "" {
			apiErr.Message = errBody.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
